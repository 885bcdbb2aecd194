// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"sync"

	"git.sr.ht/~xmppd/xmppd/nad"
)

// OutQueue is a per-remote-domain FIFO of stanzas waiting for a route to
// validate.
type OutQueue struct {
	mu     sync.Mutex
	queues map[string][]*nad.NAD
}

// NewOutQueue returns an empty OutQueue.
func NewOutQueue() *OutQueue {
	return &OutQueue{queues: make(map[string][]*nad.NAD)}
}

// Push appends n to remote's pending queue.
func (q *OutQueue) Push(remote string, n *nad.NAD) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[remote] = append(q.queues[remote], n)
}

// Drain removes and returns every stanza queued for remote, in arrival
// order, flushing the outq[remote] through
// the connection".
func (q *OutQueue) Drain(remote string) []*nad.NAD {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.queues[remote]
	delete(q.queues, remote)
	return pending
}

// Len reports how many stanzas are queued for remote.
func (q *OutQueue) Len(remote string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[remote])
}

// Pending returns every remote domain currently holding queued stanzas.
func (q *OutQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.queues))
	for remote := range q.queues {
		out = append(out, remote)
	}
	return out
}
