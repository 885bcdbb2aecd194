// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/mio"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
	"git.sr.ht/~xmppd/xmppd/stream"
)

// RouterConfig gathers what the gateway needs to dial and bind itself to
// the router.
type RouterConfig struct {
	Addr     string
	User     string
	Password string
}

// ReapConfig configures the idle/keepalive sweep ("a
// periodic sweep... closes sessions with last_activity older than
// io.check.idle... writes a single space byte to sessions older than
// io.check.keepalive").
type ReapConfig struct {
	Interval time.Duration
	Idle     time.Duration
	Keepalive time.Duration
}

// Config gathers everything a Gateway needs at construction.
type Config struct {
	// Realm is the gateway's own domain, and the component name it binds
	// on the router.
	Realm string

	Router   RouterConfig
	Provider Provider

	// TLS configures STARTTLS; nil disables it. Require makes it
	// mandatory (STARTTLS_REQUIRE) before any other feature is offered.
	TLS        *tls.Config
	RequireTLS bool

	// AllowRegistration enables the in-band-registration plugin
	//.
	AllowRegistration bool

	Conflict ConflictPolicy
	Reap     ReapConfig

	Log *logrus.Entry
}

// Gateway is the client-to-server process: it accepts client
// connections, drives each through TLS/SASL/bind negotiation, tracks
// bound sessions, and exchanges application stanzas with the router over
// its own component-protocol link.
type Gateway struct {
	realm    string
	cfg      Config
	reactor  *mio.Reactor
	cache    *nad.Cache
	provider Provider
	sessions *Table
	link     *routerLink
	log      *logrus.Entry
	deadq    sx.DeadQueue
	now      func() time.Time
}

// NewGateway constructs a Gateway from cfg and dials its router link.
// The caller still owns starting client listeners via Listen.
func NewGateway(cfg Config) (*Gateway, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	cache := nad.NewCache()

	link, err := dialRouterLink(cfg.Router.Addr, cfg.Router.User, cfg.Router.Password, cfg.Realm, cache, log)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		realm:    cfg.Realm,
		cfg:      cfg,
		reactor:  mio.New(log),
		cache:    cache,
		provider: cfg.Provider,
		sessions: NewTable(),
		link:     link,
		log:      log,
		now:      time.Now,
	}
	link.stream.App = func(_ *sx.Stream, n *nad.NAD) {
		g.handleInboundRoute(n)
	}
	g.reactor.Watch(link.stream.Conn, func() error {
		return link.stream.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		g.log.Warn("c2s: router link closed")
	})
	return g, nil
}

// Listen starts accepting client connections on addr.
func (g *Gateway) Listen(network, addr string) error {
	_, err := g.reactor.Listen(network, addr, func(act mio.Action, conn net.Conn, err error) {
		if act != mio.Accept || err != nil {
			return
		}
		g.acceptClient(conn)
	})
	return err
}

// Run waits up to timeout for one reactor event, dispatches it, flushes
// the dead queue, and sweeps idle/keepalive sessions once per call.
func (g *Gateway) Run(timeout time.Duration) {
	g.reactor.Run(timeout)
	g.deadq.Flush()
	g.reap()
}

// Shutdown closes every bound session's stream and the router link,
// waiting up to grace for each to drain its write queue.
func (g *Gateway) Shutdown(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for _, sess := range g.sessions.All() {
		closeGracefully(sess.Stream, deadline)
	}
	if g.link != nil {
		closeGracefully(g.link.stream, deadline)
	}
	_ = g.reactor.Close()
	_ = g.provider.Free()
	g.deadq.Flush()
}

func closeGracefully(s *sx.Stream, deadline time.Time) {
	if s == nil {
		return
	}
	if time.Now().Before(deadline) {
		_ = s.Flush()
	}
	_ = s.Close()
}

func (g *Gateway) plugins() []sx.Plugin {
	plugins := make([]sx.Plugin, 0, 4)
	if g.cfg.TLS != nil {
		plugins = append(plugins, sx.TLSPlugin(g.cfg.TLS, g.cfg.RequireTLS))
	}
	plugins = append(plugins, sx.SASLPlugin(&sxCredentials{realm: g.realm, provider: g.provider}))
	if g.cfg.AllowRegistration {
		plugins = append(plugins, newRegisterPlugin(g.realm, g.provider))
	}
	plugins = append(plugins, sx.BindPlugin(newBindHandler(g.realm, g.provider, g.sessions, g.cfg.Conflict, g.onBound)))
	return plugins
}

func (g *Gateway) onBound(user, resource string, s *sx.Stream) {
	sess := &Session{User: user, Resource: resource, Stream: s}
	sess.Touch(g.now())
	g.sessions.Bind(sess)
	if err := g.announceSession(user + "/" + resource); err != nil {
		g.log.WithError(err).Warn("c2s: failed to announce session to router")
	}
}

func (g *Gateway) acceptClient(conn net.Conn) {
	s := sx.New(conn, g.cache, g.plugins(), sx.None, g.log)
	s.Namespace = ns.Client

	s.App = func(s *sx.Stream, n *nad.NAD) {
		g.handleClientStanza(s, n)
	}

	g.reactor.Watch(conn, func() error {
		if err := s.Accept(); err != nil {
			return err
		}
		return s.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		g.sessions.UnbindStream(s)
		g.deadq.Mark(s)
	})
}

// handleClientStanza is the App handler for every bound client stream:
// legacy <session/> IQs are acknowledged as a no-op, and
// everything else is forwarded to the router addressed from the bound
// full JID.
func (g *Gateway) handleClientStanza(s *sx.Stream, n *nad.NAD) {
	root := n.Root()
	if n.ElementName(root) == "iq" {
		if query := firstChildNamed(n, root, "session"); query != nad.None && n.ElementNamespace(query) == ns.Session {
			g.ackSession(s, n, root)
			return
		}
	}
	if sess, ok := g.sessionFor(s); ok {
		sess.Touch(g.now())
	}
	if err := g.sendStanzaToRouter(n, s.From); err != nil {
		g.log.WithError(err).Warn("c2s: failed to forward stanza to router")
	}
}

func (g *Gateway) sessionFor(s *sx.Stream) (*Session, bool) {
	for _, sess := range g.sessions.All() {
		if sess.Stream == s {
			return sess, true
		}
	}
	return nil, false
}

func (g *Gateway) ackSession(s *sx.Stream, n *nad.NAD, root int) {
	id, _ := n.Attr(root, "id")
	reply := `<iq type='result'/>`
	if id != "" {
		reply = `<iq id='` + xmlAttrEscape(id) + `' type='result'/>`
	}
	_ = s.QueueRaw([]byte(reply), nil)
}

// reap implements the idle/keepalive sweep.
func (g *Gateway) reap() {
	if g.cfg.Reap.Idle == 0 && g.cfg.Reap.Keepalive == 0 {
		return
	}
	now := g.now()
	for _, sess := range g.sessions.All() {
		idle := now.Sub(sess.LastActivity())
		if g.cfg.Reap.Idle > 0 && idle > g.cfg.Reap.Idle {
			_ = sess.Stream.CloseError(stream.HostGone)
			g.sessions.Unbind(sess.User, sess.Resource)
			continue
		}
		if g.cfg.Reap.Keepalive > 0 && idle > g.cfg.Reap.Keepalive {
			_ = sess.Stream.QueueRaw([]byte(" "), nil)
		}
	}
}
