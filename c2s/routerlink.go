// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// routerLink is the gateway's own connection to the router, speaking the
// same component protocol router/bind.go implements on the other end: it
// dials in, completes SASL as an ordinary component, sends a single
// <bind name='realm'/> naming the gateway's whole domain, and from then
// on exchanges <route/>-wrapped stanzas.
type routerLink struct {
	stream *sx.Stream
	realm  string
}

// dialRouterLink dials addr, authenticates as user/password, and binds
// name (normally the gateway's realm) on the router, blocking until the
// bind ack arrives.
func dialRouterLink(addr, user, password, name string, cache *nad.Cache, log *logrus.Entry) (*routerLink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("c2s: dial router: %w", err)
	}

	s := sx.New(conn, cache, []sx.Plugin{
		sx.ClientSASLPlugin(user, password),
	}, sx.None, log)
	s.From = name
	if err := s.Dial(name); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("c2s: router handshake: %w", err)
	}

	if err := sendComponentBind(s, name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := awaitBindAck(s, name); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &routerLink{stream: s, realm: name}, nil
}

func sendComponentBind(s *sx.Stream, name string) error {
	return s.QueueRaw([]byte(fmt.Sprintf(`<bind xmlns='%s' name='%s'/>`, ns.Component, xmlAttrEscape(name))), nil)
}

// awaitBindAck reads the router's single reply to the bind request sent
// by sendComponentBind, before the gateway's normal stanza-dispatch App
// handler takes over the stream's Run loop.
func awaitBindAck(s *sx.Stream, name string) error {
	n, err := s.ReadElement()
	if err != nil {
		return err
	}
	defer n.Free()
	root := n.Root()
	if n.ElementName(root) != "bind" || n.ElementNamespace(root) != ns.Component {
		return fmt.Errorf("c2s: unexpected reply to bind: <%s>", n.ElementName(root))
	}
	if cond, isErr := n.Attr(root, "error"); isErr {
		return fmt.Errorf("c2s: router refused bind name=%s: %s", name, cond)
	}
	return nil
}

func xmlAttrEscape(v string) string {
	var buf []byte
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\'':
			buf = append(buf, "&apos;"...)
		case '&':
			buf = append(buf, "&amp;"...)
		case '<':
			buf = append(buf, "&lt;"...)
		case '>':
			buf = append(buf, "&gt;"...)
		default:
			buf = append(buf, v[i])
		}
	}
	return string(buf)
}
