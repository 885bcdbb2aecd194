// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// routerLink is the gateway's own connection to the router, the same
// component protocol c2s.routerLink speaks: dial, authenticate as an
// ordinary component, send a single <bind name='...'/>, then exchange
// <route/>-wrapped stanzas from then on. The name
// it binds is normally configured as the router's DefaultRoute, so
// stanzas for domains with no explicit route land here.
type routerLink struct {
	stream *sx.Stream
	name   string
}

// dialRouterLink dials addr, authenticates as user/password, and binds
// name on the router, blocking until the bind ack arrives.
func dialRouterLink(addr, user, password, name string, cache *nad.Cache, log *logrus.Entry) (*routerLink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("s2s: dial router: %w", err)
	}

	s := sx.New(conn, cache, []sx.Plugin{
		sx.ClientSASLPlugin(user, password),
	}, sx.None, log)
	s.From = name
	if err := s.Dial(name); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("s2s: router handshake: %w", err)
	}

	if err := sendComponentBind(s, name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := awaitBindAck(s, name); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &routerLink{stream: s, name: name}, nil
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
		return fmt.Errorf("s2s: unexpected reply to bind: <%s>", n.ElementName(root))
	}
	if cond, isErr := n.Attr(root, "error"); isErr {
		return fmt.Errorf("s2s: router refused bind name=%s: %s", name, cond)
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
