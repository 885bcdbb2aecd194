// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"time"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/internal/ratelimit"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// xmlEscapeAttr escapes v for use inside a single-quoted XML attribute
// value.
func xmlEscapeAttr(v string) string {
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

// UserTable is the preconfigured user/secret table the router's SASL
// DIGEST-MD5 filter authenticates components against.
type UserTable struct {
	Domain string
	Users  map[string]string // username -> plaintext secret
}

// Realm implements sx.Credentials.
func (u *UserTable) Realm(string) string { return u.Domain }

// Password implements sx.Credentials.
func (u *UserTable) Password(_ context.Context, _, user string) (string, error) {
	pw, ok := u.Users[user]
	if !ok {
		return "", errUnknownUser
	}
	return pw, nil
}

// CheckAuthzid implements sx.Credentials: the router's component protocol
// does not support acting on behalf of another identity.
func (u *UserTable) CheckAuthzid(_ context.Context, _, authzid string) bool {
	return authzid == ""
}

type userError string

func (e userError) Error() string { return string(e) }

const errUnknownUser = userError("router: unknown component user")

// BindRate is the per-(limit,window,throttle) configuration used to build
// a fresh rate-limit Bucket for every bound Component.
type BindRate struct {
	Limit            int64
	Window, Throttle time.Duration
}

// Attach installs the router's stream-level handling on s: it watches for
// <bind name='...'/> / <unbind name='...'/> elements once the stream is
// Ready and Authn, registering or removing Components in t, and forwards
// every other top-level NAD through Forward.
func (t *Table) Attach(s *sx.Stream, rate BindRate, router *Router) {
	s.App = func(s *sx.Stream, n *nad.NAD) {
		root := n.Root()
		name := n.ElementName(root)
		namespace := n.ElementNamespace(root)
		switch {
		case name == "bind" && namespace == ns.Component:
			t.handleBind(s, n, rate)
		case name == "unbind" && namespace == ns.Component:
			t.handleUnbind(s, n)
		default:
			router.forwardFromStream(s, n)
		}
	}
}

func (t *Table) handleBind(s *sx.Stream, n *nad.NAD, rate BindRate) {
	root := n.Root()
	name, ok := n.Attr(root, "name")
	if !ok || name == "" {
		_ = s.QueueRaw([]byte(`<bind xmlns='`+ns.Component+`' error='bad-request'/>`), nil)
		return
	}
	defaultName := t.DefaultName()
	c := &Component{Name: name, Stream: s, Default: name == defaultName && defaultName != ""}
	if rate.Limit > 0 {
		c.Limiter = ratelimit.New(rate.Limit, rate.Window, rate.Throttle)
	}
	if err := t.Bind(name, c); err != nil {
		_ = s.QueueRaw([]byte(`<bind xmlns='`+ns.Component+`' error='not-authorized'/>`), nil)
		return
	}
	_ = s.QueueRaw([]byte(`<bind xmlns='`+ns.Component+`' name='`+xmlEscapeAttr(name)+`'/>`), nil)
}

func (t *Table) handleUnbind(s *sx.Stream, n *nad.NAD) {
	root := n.Root()
	name, ok := n.Attr(root, "name")
	if !ok {
		return
	}
	t.Unbind(name)
}
