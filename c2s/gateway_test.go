// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/nad"
)

func TestPluginsOmitsOptionalPluginsByDefault(t *testing.T) {
	g := &Gateway{cfg: Config{}, realm: "example.com", provider: NewMapProvider("example.com", nil)}
	plugins := g.plugins()
	// Always present: SASL and bind. TLS and register are opt-in.
	require.Len(t, plugins, 2)
}

func TestPluginsIncludesTLSAndRegisterWhenConfigured(t *testing.T) {
	g := &Gateway{
		cfg: Config{
			TLS:               &tls.Config{},
			AllowRegistration: true,
		},
		realm:    "example.com",
		provider: NewMapProvider("example.com", nil),
	}
	plugins := g.plugins()
	require.Len(t, plugins, 4)
}

func TestOnBoundRegistersSessionAndAnnouncesToRouter(t *testing.T) {
	g, peer := newTestGatewayWithLink(t)

	clientServer, clientPeer := net.Pipe()
	defer clientServer.Close()
	defer clientPeer.Close()
	clientStream := newTestSessionStream(clientServer)

	done := make(chan struct{})
	go func() {
		g.onBound("alice@example.com", "phone", clientStream)
		close(done)
	}()

	announce := readRouteFromPeer(t, peer)
	<-done

	sess, ok := g.sessions.Lookup("alice@example.com", "phone")
	require.True(t, ok)
	require.Same(t, clientStream, sess.Stream)

	root := announce.Root()
	routeType, _ := announce.Attr(root, "type")
	require.Equal(t, "session", routeType)
}

func TestReapClosesIdleSessionsAndPingsKeepaliveOnes(t *testing.T) {
	g, _ := newTestGatewayWithLink(t)
	g.cfg.Reap = ReapConfig{Idle: time.Minute, Keepalive: 30 * time.Second}

	idleServer, idleClient := net.Pipe()
	defer idleClient.Close()
	idleStream := newTestSessionStream(idleServer)
	idleSess := &Session{User: "alice@example.com", Resource: "phone", Stream: idleStream}
	idleSess.Touch(time.Now().Add(-2 * time.Minute))
	g.sessions.Bind(idleSess)

	aliveServer, aliveClient := net.Pipe()
	defer aliveClient.Close()
	aliveStream := newTestSessionStream(aliveServer)
	aliveSess := &Session{User: "bob@example.com", Resource: "desktop", Stream: aliveStream}
	aliveSess.Touch(time.Now().Add(-45 * time.Second))
	g.sessions.Bind(aliveSess)

	idleDrained := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, idleClient)
		close(idleDrained)
	}()
	aliveRead := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = aliveClient.Read(buf)
		close(aliveRead)
	}()

	g.reap()

	<-idleDrained
	<-aliveRead

	_, ok := g.sessions.Lookup("alice@example.com", "phone")
	require.False(t, ok)
	require.True(t, g.sessions.HasResource("bob@example.com", "desktop"))
}

func TestAckSessionRepliesWithIQResult(t *testing.T) {
	g, _ := newTestGatewayWithLink(t)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s := newTestSessionStream(server)

	n := nad.New()
	root := n.AppendElement(nad.None, "iq", "jabber:client")
	n.AppendAttr(root, "id", "", "sess1")
	n.AppendAttr(root, "type", "", "set")

	done := make(chan struct{})
	go func() {
		g.ackSession(s, n, root)
		close(done)
	}()

	reply, err := nad.Parse(client, nad.NewCache())
	require.NoError(t, err)
	<-done

	replyRoot := reply.Root()
	id, _ := reply.Attr(replyRoot, "id")
	typ, _ := reply.Attr(replyRoot, "type")
	require.Equal(t, "sess1", id)
	require.Equal(t, "result", typ)
}
