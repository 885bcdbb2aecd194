// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

// DeadQueue defers freeing closed Streams until the end of the current
// reactor iteration, so a
// callback walking a collection of streams never has one vanish under it
// mid-iteration.
type DeadQueue struct {
	dead []*Stream
}

// Mark schedules s to be freed the next time Flush is called.
func (q *DeadQueue) Mark(s *Stream) {
	q.dead = append(q.dead, s)
}

// Flush frees every marked stream and clears the queue. Safe to call with
// an empty queue.
func (q *DeadQueue) Flush() {
	for _, s := range q.dead {
		s.free()
	}
	q.dead = q.dead[:0]
}

// Len reports how many streams are currently pending free.
func (q *DeadQueue) Len() int { return len(q.dead) }
