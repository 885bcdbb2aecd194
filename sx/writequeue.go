// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import "sync"

// writeItem is a queued buffer plus an optional notify callback fired once
// the buffer is fully flushed to the transport : used to trigger stream resets after <proceed/> or SASL
// <success/>.
type writeItem struct {
	buf    []byte
	off    int
	notify func()
}

// writeQueue is the Stream's outbound buffer list. Every operation takes
// mu, so buffers may be queued from any goroutine.
type writeQueue struct {
	mu    sync.Mutex
	items []writeItem
}

func (q *writeQueue) push(buf []byte, notify func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, writeItem{buf: buf, notify: notify})
}

func (q *writeQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// drain writes as much of the queue as write accepts without blocking,
// firing notify callbacks for buffers that finish draining, and reports
// whether the queue is now empty.
func (q *writeQueue) drain(write func([]byte) (int, error)) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 {
		it := &q.items[0]
		n, err := write(it.buf[it.off:])
		it.off += n
		if err != nil {
			return false, err
		}
		if it.off < len(it.buf) {
			return false, nil
		}
		if it.notify != nil {
			it.notify()
		}
		q.items = q.items[1:]
	}
	return true, nil
}
