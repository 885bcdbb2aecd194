// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dnscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls int
	addr  string
	port  uint16
}

func (f *fakeResolver) Resolve(ctx context.Context, name string) (string, uint16, error) {
	f.calls++
	return f.addr, f.port, nil
}

func TestLookupCachesUntilExpiry(t *testing.T) {
	r := &fakeResolver{addr: "203.0.113.5", port: 5269}
	c := New(r, time.Minute)

	e1, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", e1.Addr)
	require.Equal(t, 1, r.calls)

	e2, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, e1.Addr, e2.Addr)
	require.Equal(t, 1, r.calls, "second lookup within TTL should not re-resolve")
}

func TestExpiryBoundaryForcesReResolution(t *testing.T) {
	r := &fakeResolver{addr: "203.0.113.5", port: 5269}
	c := New(r, time.Minute)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	_, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, 1, r.calls)

	// Exactly at the expiry boundary the entry must be treated as stale.
	c.now = func() time.Time { return start.Add(time.Minute) }

	_, err = c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, 2, r.calls, "lookup at the expiry boundary must re-resolve")
}

func TestInvalidateForcesReResolution(t *testing.T) {
	r := &fakeResolver{addr: "203.0.113.5", port: 5269}
	c := New(r, time.Minute)

	_, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	c.Invalidate("example.com")
	require.Equal(t, 0, c.Len())

	_, err = c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, 2, r.calls)
}
