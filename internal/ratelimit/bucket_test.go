// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/internal/ratelimit"
)

func TestAllowPermitsUpToLimit(t *testing.T) {
	b := ratelimit.New(100, time.Second, 5*time.Second)
	require.True(t, b.Allow(60))
	require.True(t, b.Allow(40))
	require.True(t, b.Ready())
}

func TestAllowThrottlesOverLimit(t *testing.T) {
	b := ratelimit.New(100, time.Second, 5*time.Second)
	require.True(t, b.Allow(60))
	require.False(t, b.Allow(60), "cumulative usage exceeds the window limit")
	require.False(t, b.Ready(), "READ interest must stay suppressed immediately after a throttle")
}

func TestReadyRestoresAfterThrottleWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := ratelimit.NewWithClock(100, time.Second, 5*time.Second, func() time.Time { return now })

	require.False(t, b.Allow(150))
	require.False(t, b.Ready())

	now = now.Add(4 * time.Second)
	require.False(t, b.Ready(), "must not restore before the full throttle duration elapses")

	now = now.Add(time.Second)
	require.True(t, b.Ready(), "must restore exactly at the throttle duration")
}

func TestWindowResetsUsageAfterElapsing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := ratelimit.NewWithClock(100, time.Second, 5*time.Second, func() time.Time { return now })

	require.True(t, b.Allow(90))
	now = now.Add(2 * time.Second)
	require.True(t, b.Allow(90), "usage from the prior window must not carry over")
}
