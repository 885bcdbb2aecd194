// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
)

func TestBindRejectsNameDeniedByACL(t *testing.T) {
	acl := accesslist.New(accesslist.AllowDeny)
	acl.Deny("evil.example")

	tbl := NewTable(acl, nil)
	err := tbl.Bind("evil.example", &Component{Name: "evil.example"})
	require.Error(t, err)

	_, ok := tbl.Lookup("evil.example")
	require.False(t, ok)
}

func TestBindAllowsNamePermittedByACL(t *testing.T) {
	tbl := NewTable(nil, nil)
	err := tbl.Bind("sm.example", &Component{Name: "sm.example"})
	require.NoError(t, err)

	c, ok := tbl.Lookup("sm.example")
	require.True(t, ok)
	require.Equal(t, "sm.example", c.Name)
}

func TestAliasResolvesBeforeLookup(t *testing.T) {
	tbl := NewTable(nil, nil)
	require.NoError(t, tbl.Bind("muc.internal", &Component{Name: "muc.internal"}))
	tbl.Alias("chat.example", "muc.internal")

	c, ok := tbl.Lookup("chat.example")
	require.True(t, ok)
	require.Equal(t, "muc.internal", c.Name)
}

func TestDefaultRouteReturnsComponentMarkedDefault(t *testing.T) {
	tbl := NewTable(nil, nil)
	require.NoError(t, tbl.Bind("s2s.example", &Component{Name: "s2s.example", Default: true}))

	c, ok := tbl.DefaultRoute()
	require.True(t, ok)
	require.Equal(t, "s2s.example", c.Name)
}

func TestUnbindStreamRemovesAllNamesForStream(t *testing.T) {
	tbl := NewTable(nil, nil)

	c := &Component{Name: "a.example"}
	require.NoError(t, tbl.Bind("a.example", c))
	require.NoError(t, tbl.Bind("b.example", &Component{Name: "b.example", Stream: c.Stream}))

	tbl.UnbindStream(c.Stream)

	_, ok := tbl.Lookup("a.example")
	require.False(t, ok)
	_, ok = tbl.Lookup("b.example")
	require.False(t, ok)
}

func TestPermitRouteDefaultsToAllowWithNoACL(t *testing.T) {
	tbl := NewTable(nil, nil)
	require.True(t, tbl.PermitRoute("anything.example"))
}

func TestPermitRouteEnforcesRouteACL(t *testing.T) {
	acl := accesslist.New(accesslist.DenyAllow)
	acl.Allow("sm.example")

	tbl := NewTable(nil, acl)
	require.True(t, tbl.PermitRoute("sm.example"))
	require.False(t, tbl.PermitRoute("unknown.example"))
}
