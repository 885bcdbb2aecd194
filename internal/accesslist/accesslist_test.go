// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package accesslist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
)

func TestMatchesSuffixAlignedOnDotBoundary(t *testing.T) {
	require.True(t, accesslist.Matches("a.b.example", "example"))
	require.True(t, accesslist.Matches("example", "example"))
	require.False(t, accesslist.Matches("ample", "example"))
	require.False(t, accesslist.Matches("notanexample", "example"))
}

func TestAllowDenyOrderDenyWins(t *testing.T) {
	l := accesslist.New(accesslist.AllowDeny)
	l.Allow("example.com")
	l.Deny("bad.example.com")

	require.True(t, l.Permit("alice.example.com"))
	require.False(t, l.Permit("evil.bad.example.com"))
}

func TestDenyAllowOrderRequiresAllow(t *testing.T) {
	l := accesslist.New(accesslist.DenyAllow)
	l.Allow("good.example.com")

	require.True(t, l.Permit("a.good.example.com"))
	require.False(t, l.Permit("other.example.com"))
}
