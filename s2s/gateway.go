// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
	"git.sr.ht/~xmppd/xmppd/internal/dnscache"
	"git.sr.ht/~xmppd/xmppd/internal/genid"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
	"git.sr.ht/~xmppd/xmppd/mio"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/stream"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// RouterConfig gathers what the gateway needs to dial and bind itself to
// the router, the same shape c2s.RouterConfig uses for the same
// component-protocol link.
type RouterConfig struct {
	Addr     string
	User     string
	Password string
}

// ReapConfig configures the periodic reaper sweep: per
// conn/route timeouts (Queue), keepalive writes, and idle closes.
type ReapConfig struct {
	Interval  time.Duration
	Queue     time.Duration
	Keepalive time.Duration
	Idle      time.Duration
}

// Config gathers everything a Gateway needs at construction.
type Config struct {
	// Local is this server's own domain, the "local" half of every
	// dialback route-key it negotiates.
	Local string

	// BindName is the component name bound on the router; the router
	// operator is expected to configure this as its Config.DefaultName so
	// stanzas for unrouted domains land here.
	// Defaults to Local if empty.
	BindName string

	Router   RouterConfig
	Resolver dnscache.Resolver
	CacheTTL time.Duration

	// Secret is the dialback secret shared by every route this gateway
	// negotiates. Generated via internal/genid if empty.
	Secret string

	// Whitelist, if non-nil, restricts which remote domains may complete
	// an incoming or outgoing handshake.
	Whitelist *accesslist.List

	// TLS configures STARTTLS on peer streams; nil disables it.
	TLS        *tls.Config
	RequireTLS bool

	DialTimeout time.Duration
	Reap        ReapConfig

	Log *logrus.Entry
}

// pendingAttempt tracks an outbound dial not yet represented by a
// PeerConn, so the reaper can still time it out using the normal
// "outgoing connection never became online within check.queue".
type pendingAttempt struct {
	started time.Time
}

// Gateway is the server-to-server process: it dials and accepts peer
// connections, negotiates Server Dialback on each, and exchanges
// application stanzas with the router over its own component-protocol
// link.
type Gateway struct {
	cfg   Config
	local string

	reactor  *mio.Reactor
	cache    *nad.Cache
	secret   string
	resolver *dnscache.Cache
	// resolverMu serializes access to resolver: dnscache.Cache documents
	// itself as "not safe for concurrent use", written for a single
	// reactor-owned caller, but every peer connection here runs its own
	// goroutine (the same divergence c2s.Table's doc comment explains).
	resolverMu sync.Mutex

	peers *Table
	outq  *OutQueue

	pendingMu   sync.Mutex
	pendingDial map[string]pendingAttempt

	link *routerLink
	log  *logrus.Entry

	deadq sx.DeadQueue
	now   func() time.Time
}

// NewGateway constructs a Gateway from cfg and dials its router link. The
// caller still owns starting peer listeners via Listen.
func NewGateway(cfg Config) (*Gateway, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	secret := cfg.Secret
	if secret == "" {
		secret = genid.Secret()
	}
	bindName := cfg.BindName
	if bindName == "" {
		bindName = cfg.Local
	}
	cache := nad.NewCache()

	link, err := dialRouterLink(cfg.Router.Addr, cfg.Router.User, cfg.Router.Password, bindName, cache, log)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:         cfg,
		local:       cfg.Local,
		reactor:     mio.New(log),
		cache:       cache,
		secret:      secret,
		resolver:    dnscache.New(cfg.Resolver, cfg.CacheTTL),
		peers:       NewTable(),
		outq:        NewOutQueue(),
		pendingDial: make(map[string]pendingAttempt),
		link:        link,
		log:         log,
		now:         time.Now,
	}
	link.stream.App = func(_ *sx.Stream, n *nad.NAD) {
		g.handleInboundRoute(n)
	}
	g.reactor.Watch(link.stream.Conn, func() error {
		return link.stream.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		g.log.Warn("s2s: router link closed")
	})
	return g, nil
}

// Listen starts accepting peer connections on addr.
func (g *Gateway) Listen(network, addr string) error {
	_, err := g.reactor.Listen(network, addr, func(act mio.Action, conn net.Conn, err error) {
		if act != mio.Accept || err != nil {
			return
		}
		g.acceptPeer(conn)
	})
	return err
}

// Run drives the reactor for as long as the caller keeps calling it, and
// sweeps timed-out routes/connections once per call.
func (g *Gateway) Run(timeout time.Duration) {
	g.reactor.Run(timeout)
	g.deadq.Flush()
	g.reap()
}

// Shutdown closes every peer connection and the router link, waiting up
// to grace for each to drain its write queue.
func (g *Gateway) Shutdown(grace time.Duration) {
	deadline := g.now().Add(grace)
	for _, conn := range g.peers.All() {
		closeGracefully(conn.Stream, deadline)
	}
	if g.link != nil {
		closeGracefully(g.link.stream, deadline)
	}
	_ = g.reactor.Close()
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

func (g *Gateway) peerPlugins() []sx.Plugin {
	if g.cfg.TLS == nil {
		return nil
	}
	return []sx.Plugin{sx.TLSPlugin(g.cfg.TLS, g.cfg.RequireTLS)}
}

func (g *Gateway) acceptPeer(conn net.Conn) {
	ip, port := hostPort(conn.RemoteAddr())
	s := sx.New(conn, g.cache, g.peerPlugins(), sx.Received|sx.S2S, g.log)
	s.Namespace = ns.Server

	pc := NewPeerConn(Incoming, s, ip, port, g.now())
	g.peers.Put(pc)

	s.App = func(s *sx.Stream, n *nad.NAD) {
		g.handlePeerStanza(s, n, pc)
	}
	g.reactor.Watch(conn, func() error {
		if err := s.Accept(); err != nil {
			return err
		}
		return s.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		g.peers.RemoveStream(s)
	})
}

func hostPort(addr net.Addr) (string, int) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String(), 0
	}
	return tcpAddr.IP.String(), tcpAddr.Port
}

// sendToRemote is the outgoing path: a stanza addressed
// to remote arrives (from the router, via handleInboundRoute). It is
// queued on remote's OutQueue and either flushed immediately over an
// existing VALID route, or dispatched through DNS resolution and a fresh
// dial.
func (g *Gateway) sendToRemote(remote, from, to string, stanza *nad.NAD) {
	if g.cfg.Whitelist != nil && !g.cfg.Whitelist.Permit(remote) {
		g.log.WithField("remote", remote).Warn("s2s: outgoing blocked by whitelist")
		g.bounceToRouter(stanza, to, from, "policy-violation")
		return
	}

	g.resolverMu.Lock()
	entry, err := g.resolver.Lookup(context.Background(), remote)
	g.resolverMu.Unlock()
	if err != nil {
		g.bounceToRouter(stanza, to, from, bounceRemoteServerNotFound)
		return
	}

	if conn, ok := g.peers.Lookup(entry.Addr, int(entry.Port)); ok && conn.Online() {
		g.routeOverConn(conn, remote, from, to, stanza)
		return
	}

	g.outq.Push(remote, stanza)
	g.pendingMu.Lock()
	if _, dialing := g.pendingDial[remote]; dialing {
		g.pendingMu.Unlock()
		return
	}
	g.pendingDial[remote] = pendingAttempt{started: g.now()}
	g.pendingMu.Unlock()

	g.dialOutgoing(remote, entry.Addr, int(entry.Port))
}

// routeOverConn sends stanza on conn's route to remote, initiating
// dialback if the route hasn't started yet, or queuing behind it if a
// dialback exchange is already IN_PROGRESS.
func (g *Gateway) routeOverConn(conn *PeerConn, remote, from, to string, stanza *nad.NAD) {
	route, ok := conn.Route(g.local, remote)
	switch {
	case ok && route.State == RouteValid:
		g.deliverOverConn(conn, stanza)
	case ok && route.State == RouteInProgress:
		g.outq.Push(remote, stanza)
	case ok && route.State == RouteInvalid:
		g.bounceToRouter(stanza, to, from, bounceRemoteServerNotFound)
	default:
		g.outq.Push(remote, stanza)
		g.beginDialback(conn, remote)
	}
}

func (g *Gateway) deliverOverConn(conn *PeerConn, stanza *nad.NAD) {
	out := nad.New()
	copyElement(stanza, stanza.Root(), out, nad.None)
	_ = conn.Stream.QueueNAD(out, nil)
	conn.Touch(g.now())
}

// beginDialback sends <db:result> claiming the local/remote route over
// conn, the outgoing path's step 3.
func (g *Gateway) beginDialback(conn *PeerConn, remote string) {
	if g.cfg.RequireTLS && !conn.Stream.State().Has(sx.Secure) {
		g.log.WithField("remote", remote).Warn("s2s: refusing dialback on unencrypted stream")
		_ = conn.Stream.Close()
		g.bounceQueue(remote, bounceRemoteServerNotFound)
		return
	}
	key := dialbackKey(g.secret, remote, conn.Stream.ID)
	conn.SetRoute(g.local, remote, RouteInProgress, g.now())
	_ = conn.Stream.QueueNAD(buildDBResult(g.cache, g.local, remote, key, ""), nil)
}

func (g *Gateway) dialOutgoing(remote, ip string, port int) {
	addr := fmt.Sprintf("%s:%d", ip, port)
	timeout := g.cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	g.reactor.Connect("tcp", addr, timeout, func(act mio.Action, conn net.Conn, err error) {
		g.pendingMu.Lock()
		delete(g.pendingDial, remote)
		g.pendingMu.Unlock()
		if err != nil {
			g.bounceQueue(remote, bounceRemoteServerNotFound)
			return
		}
		go g.establishOutgoing(conn, remote, ip, port)
	})
}

// establishOutgoing performs the blocking Dial handshake in its own
// goroutine, then
// hands the connection to the reactor's Watch loop like every other
// stream in this codebase.
func (g *Gateway) establishOutgoing(conn net.Conn, remote, ip string, port int) {
	s := sx.New(conn, g.cache, g.peerPlugins(), sx.S2S, g.log)
	s.Namespace = ns.Server
	if err := s.Dial(remote); err != nil {
		_ = conn.Close()
		g.bounceQueue(remote, bounceRemoteServerNotFound)
		return
	}

	pc := NewPeerConn(Outgoing, s, ip, port, g.now())
	pc.MarkOnline()
	g.peers.Put(pc)

	s.App = func(s *sx.Stream, n *nad.NAD) {
		g.handlePeerStanza(s, n, pc)
	}
	g.reactor.Watch(conn, func() error {
		return s.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		g.peers.RemoveStream(s)
	})

	g.beginDialback(pc, remote)
}

// bounceQueue bounces every stanza queued for remote with condition, used
// when a resolve, dial, or dialback attempt fails outright.
func (g *Gateway) bounceQueue(remote, condition string) {
	for _, stanza := range g.outq.Drain(remote) {
		root := stanza.Root()
		to, _ := stanza.Attr(root, "to")
		from, _ := stanza.Attr(root, "from")
		g.bounceToRouter(stanza, to, from, condition)
		stanza.Free()
	}
}

// flushQueue drains remote's OutQueue over conn's now-VALID route.
func (g *Gateway) flushQueue(conn *PeerConn, remote string) {
	for _, stanza := range g.outq.Drain(remote) {
		g.deliverOverConn(conn, stanza)
		stanza.Free()
	}
}

// handlePeerStanza is the App handler for every peer connection, whether
// dialed out or accepted, dispatching Server Dialback elements and
// ordinary application stanzas.
func (g *Gateway) handlePeerStanza(s *sx.Stream, n *nad.NAD, conn *PeerConn) {
	root := n.Root()
	name := n.ElementName(root)
	namespace := n.ElementNamespace(root)

	switch {
	case namespace == ns.Dialback && name == "result":
		g.handleDBResult(s, n, root, conn)
	case namespace == ns.Dialback && name == "verify":
		g.handleDBVerify(s, n, root, conn)
	default:
		g.handleStanza(n, root, conn)
	}
}

// handleDBResult handles both roles <db:result> plays: a claim (no type
// attribute, incoming path) or a reply to a claim we sent (type='valid'
// or 'invalid', outgoing path step 4/5).
func (g *Gateway) handleDBResult(s *sx.Stream, n *nad.NAD, root int, conn *PeerConn) {
	to, _ := n.Attr(root, "to")
	from, _ := n.Attr(root, "from")

	if typ, hasType := n.Attr(root, "type"); hasType {
		// Reply to a claim we sent while dialing out.
		if typ == "valid" {
			conn.SetRoute(to, from, RouteValid, g.now())
			g.flushQueue(conn, from)
		} else {
			conn.SetRoute(to, from, RouteInvalid, g.now())
			g.bounceQueue(from, bounceRemoteServerNotFound)
		}
		return
	}

	// A claim: someone dialed in to us and wants (from, to) validated.
	if g.cfg.RequireTLS && !s.State().Has(sx.Secure) {
		g.log.WithField("remote", from).Warn("s2s: rejecting db:result on unencrypted stream")
		_ = s.CloseError(stream.PolicyViolation)
		return
	}
	if g.cfg.Whitelist != nil && !g.cfg.Whitelist.Permit(from) {
		_ = s.CloseError(stream.PolicyViolation)
		return
	}
	key := dbKey(n, root)
	conn.SetRoute(to, from, RouteInProgress, g.now())
	conn.BeginVerify(g.now())
	go g.verifyClaim(s, conn, to, from, key)
}

// verifyClaim opens a verify substream to remote  and, once the remote's authoritative server
// confirms or denies the key, replies on the original incoming
// connection and marks its route accordingly.
func (g *Gateway) verifyClaim(s *sx.Stream, conn *PeerConn, local, remote, key string) {
	g.resolverMu.Lock()
	entry, err := g.resolver.Lookup(context.Background(), remote)
	g.resolverMu.Unlock()
	if err != nil {
		conn.SetRoute(local, remote, RouteInvalid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "invalid"), nil)
		return
	}

	addr := fmt.Sprintf("%s:%d", entry.Addr, entry.Port)
	vconn, err := net.DialTimeout("tcp", addr, g.cfg.DialTimeout)
	if err != nil {
		conn.SetRoute(local, remote, RouteInvalid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "invalid"), nil)
		return
	}
	defer vconn.Close()

	vs := sx.New(vconn, nad.NewCache(), g.peerPlugins(), sx.S2S, g.log)
	vs.Namespace = ns.Server
	if err := vs.Dial(remote); err != nil {
		conn.SetRoute(local, remote, RouteInvalid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "invalid"), nil)
		return
	}

	if err := vs.QueueNAD(buildDBVerify(g.cache, local, remote, s.ID, key, ""), nil); err != nil {
		conn.SetRoute(local, remote, RouteInvalid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "invalid"), nil)
		return
	}

	reply, err := vs.ReadElement()
	valid := false
	if err == nil {
		defer reply.Free()
		root := reply.Root()
		if reply.ElementName(root) == "verify" && reply.ElementNamespace(root) == ns.Dialback {
			typ, _ := reply.Attr(root, "type")
			valid = typ == "valid"
		}
	}

	if valid {
		conn.SetRoute(local, remote, RouteValid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "valid"), nil)
	} else {
		conn.SetRoute(local, remote, RouteInvalid, g.now())
		_ = s.QueueNAD(buildDBResult(g.cache, local, remote, "", "invalid"), nil)
	}
}

// handleDBVerify handles both roles <db:verify> plays: a verification
// request from a peer acting as a receiving server for one of our
// outbound claims (no type attribute; we are the authoritative server for
// "to"), or, in principle, a reply — though in this gateway's design
// verify replies are read synchronously by verifyClaim rather than
// dispatched through App.
func (g *Gateway) handleDBVerify(s *sx.Stream, n *nad.NAD, root int, conn *PeerConn) {
	if _, hasType := n.Attr(root, "type"); hasType {
		return
	}
	to, _ := n.Attr(root, "to")     // our domain, which made the claim
	from, _ := n.Attr(root, "from") // the receiving server asking us to verify
	id, _ := n.Attr(root, "id")
	key := dbKey(n, root)

	want := dialbackKey(g.secret, from, id)
	typ := "invalid"
	if want == key {
		typ = "valid"
	}
	_ = s.QueueNAD(buildDBVerify(g.cache, to, from, id, "", typ), nil)
}

// handleStanza is the incoming path's final step : accept
// stanzas whose from/to match a VALID route and forward them to the
// router, otherwise drop the stanza.
func (g *Gateway) handleStanza(n *nad.NAD, root int, conn *PeerConn) {
	to, _ := n.Attr(root, "to")
	from, _ := n.Attr(root, "from")

	_, toDomain, _, err := jid.SplitString(to)
	if err != nil {
		return
	}
	_, fromDomain, _, err := jid.SplitString(from)
	if err != nil {
		return
	}

	route, ok := conn.Route(toDomain, fromDomain)
	if !ok || route.State != RouteValid {
		g.log.WithField("from", from).Warn("s2s: stanza on a non-VALID route, dropping")
		return
	}

	conn.Touch(g.now())
	g.sendStanzaToRouter(n, root, to, from)
}

// reap implements the periodic sweep: per conn/route timeouts,
// keepalive writes, and idle closes, plus bouncing dials that never came
// online.
func (g *Gateway) reap() {
	r := g.cfg.Reap
	now := g.now()

	if r.Queue > 0 {
		g.pendingMu.Lock()
		for remote, attempt := range g.pendingDial {
			if now.Sub(attempt.started) > r.Queue {
				delete(g.pendingDial, remote)
				g.bounceQueue(remote, bounceRemoteServerTimeout)
			}
		}
		g.pendingMu.Unlock()
	}

	for _, conn := range g.peers.All() {
		g.reapConn(conn, now, r)
	}
}

func (g *Gateway) reapConn(conn *PeerConn, now time.Time, r ReapConfig) {
	if r.Idle > 0 && now.Sub(conn.LastPacket()) > r.Idle {
		_ = conn.Stream.CloseError(stream.ConnectionTimeout)
		g.peers.RemoveStream(conn.Stream)
		return
	}

	if conn.Direction == Incoming && len(conn.Routes()) == 0 && r.Queue > 0 {
		if now.Sub(conn.InitTime()) > r.Queue {
			_ = conn.Stream.Close()
			g.peers.RemoveStream(conn.Stream)
			return
		}
	}

	if r.Queue > 0 {
		for key, route := range conn.Routes() {
			if route.State != RouteInProgress {
				continue
			}
			if now.Sub(route.StateTime) <= r.Queue {
				continue
			}
			local, remote, ok := splitRouteKey(key)
			if !ok {
				continue
			}
			_ = conn.Stream.CloseError(stream.ConnectionTimeout)
			g.peers.RemoveStream(conn.Stream)
			g.bounceQueue(remote, bounceConnectionTimeout)
			_ = local
		}
	}

	if r.Keepalive > 0 && now.Sub(conn.LastActivity()) > r.Keepalive {
		_ = conn.Stream.QueueRaw([]byte(" "), nil)
		conn.TouchKeepalive(now)
	}
}

// splitRouteKey reverses routeKey's "local/remote" join.
func splitRouteKey(key string) (local, remote string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
