// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/nad"
)

func TestSendComponentBindQueuesBindRequest(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := newTestSessionStream(server)
	done := make(chan error, 1)
	go func() { done <- sendComponentBind(s, "gateway.example.com") }()

	n, err := nad.Parse(client, nad.NewCache())
	require.NoError(t, err)
	require.NoError(t, <-done)

	root := n.Root()
	require.Equal(t, "bind", n.ElementName(root))
	name, _ := n.Attr(root, "name")
	require.Equal(t, "gateway.example.com", name)
}

func TestAwaitBindAckSucceedsOnNameReply(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := newTestSessionStream(server)
	done := make(chan error, 1)
	go func() { done <- awaitBindAck(s, "gateway.example.com") }()

	_, err := fmt.Fprint(client, `<bind xmlns='jabber:component:accept' name='gateway.example.com'/>`)
	require.NoError(t, err)

	require.NoError(t, <-done)
}

func TestAwaitBindAckFailsOnErrorReply(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := newTestSessionStream(server)
	done := make(chan error, 1)
	go func() { done <- awaitBindAck(s, "gateway.example.com") }()

	_, err := fmt.Fprint(client, `<bind xmlns='jabber:component:accept' error='conflict'/>`)
	require.NoError(t, err)

	require.Error(t, <-done)
}
