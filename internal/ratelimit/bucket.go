// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ratelimit implements the router's per-component byte-rate
// throttle. golang.org/x/time/rate's blocking
// Wait API doesn't expose the "restore READ interest after throttle
// seconds" edge the reactor needs to drive its interest set, so this is
// a small explicit bucket instead (see DESIGN.md).
package ratelimit // import "git.sr.ht/~xmppd/xmppd/internal/ratelimit"

import "time"

// Bucket is a token-bucket counter over a fixed window: it permits up to
// Limit units per Window, and once exceeded reports a Throttle duration
// the caller should pause reads for before checking again.
type Bucket struct {
	limit    int64
	window   time.Duration
	throttle time.Duration

	now func() time.Time

	windowStart time.Time
	used        int64
	throttledAt time.Time
	throttled   bool
}

// New returns a Bucket permitting limit units per window; on overflow,
// Allow reports that the caller should pause for throttle before trying
// again.
func New(limit int64, window, throttle time.Duration) *Bucket {
	return NewWithClock(limit, window, throttle, time.Now)
}

// NewWithClock is like New but lets tests substitute the clock.
func NewWithClock(limit int64, window, throttle time.Duration, now func() time.Time) *Bucket {
	return &Bucket{
		limit:    limit,
		window:   window,
		throttle: throttle,
		now:      now,
	}
}

// Allow records n units of traffic and reports whether the caller may
// proceed. If it returns false, the caller should stop reading until
// Ready reports true again.
func (b *Bucket) Allow(n int64) bool {
	t := b.now()
	if b.windowStart.IsZero() || t.Sub(b.windowStart) >= b.window {
		b.windowStart = t
		b.used = 0
	}
	b.used += n
	if b.used > b.limit {
		if !b.throttled {
			b.throttled = true
			b.throttledAt = t
		}
		return false
	}
	return true
}

// Ready reports whether a previously throttled caller's READ interest
// should be restored: true once at least the configured throttle
// duration has elapsed since the throttle began.
func (b *Bucket) Ready() bool {
	if !b.throttled {
		return true
	}
	if b.now().Sub(b.throttledAt) >= b.throttle {
		b.throttled = false
		b.used = 0
		b.windowStart = time.Time{}
		return true
	}
	return false
}
