// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTableBindLookupUnbind(t *testing.T) {
	table := NewTable()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	s := newTestSessionStream(serverConn)
	sess := &Session{User: "alice@example.com", Resource: "phone", Stream: s}
	table.Bind(sess)

	got, ok := table.Lookup("alice@example.com", "phone")
	require.True(t, ok)
	require.Same(t, sess, got)

	require.True(t, table.HasResource("alice@example.com", "phone"))
	require.False(t, table.HasResource("alice@example.com", "desktop"))

	table.Unbind("alice@example.com", "phone")
	_, ok = table.Lookup("alice@example.com", "phone")
	require.False(t, ok)
}

func TestTableResourcesFansOutToEveryBoundSession(t *testing.T) {
	table := NewTable()
	serverConn1, clientConn1 := net.Pipe()
	defer serverConn1.Close()
	defer clientConn1.Close()
	serverConn2, clientConn2 := net.Pipe()
	defer serverConn2.Close()
	defer clientConn2.Close()

	table.Bind(&Session{User: "alice@example.com", Resource: "phone", Stream: newTestSessionStream(serverConn1)})
	table.Bind(&Session{User: "alice@example.com", Resource: "desktop", Stream: newTestSessionStream(serverConn2)})

	sessions := table.Resources("alice@example.com")
	require.Len(t, sessions, 2)
}

func TestTableUnbindStreamRemovesOnlyThatStreamsSessions(t *testing.T) {
	table := NewTable()
	serverConn1, clientConn1 := net.Pipe()
	defer serverConn1.Close()
	defer clientConn1.Close()
	serverConn2, clientConn2 := net.Pipe()
	defer serverConn2.Close()
	defer clientConn2.Close()

	s1 := newTestSessionStream(serverConn1)
	s2 := newTestSessionStream(serverConn2)
	table.Bind(&Session{User: "alice@example.com", Resource: "phone", Stream: s1})
	table.Bind(&Session{User: "alice@example.com", Resource: "desktop", Stream: s2})

	table.UnbindStream(s1)

	require.False(t, table.HasResource("alice@example.com", "phone"))
	require.True(t, table.HasResource("alice@example.com", "desktop"))
}

func TestSessionTouchRecordsLastActivity(t *testing.T) {
	s := &Session{}
	now := time.Now()
	s.Touch(now)
	require.Equal(t, now, s.LastActivity())
}
