// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package s2s implements the server-to-server gateway: outgoing and
// incoming peer connections authenticated by Server Dialback, queued per
// remote domain until a route validates.
package s2s

import (
	"strconv"
	"sync"
	"time"

	"git.sr.ht/~xmppd/xmppd/sx"
)

// RouteState is the validation state of one local/remote route carried on
// a PeerConn.
type RouteState int

// Route states, in the order a route normally passes through them.
const (
	RouteNone RouteState = iota
	RouteInProgress
	RouteValid
	RouteInvalid
)

// String implements fmt.Stringer for logging.
func (s RouteState) String() string {
	switch s {
	case RouteNone:
		return "none"
	case RouteInProgress:
		return "in_progress"
	case RouteValid:
		return "valid"
	case RouteInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Direction distinguishes a connection this gateway dialed from one a
// remote server dialed into this gateway.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// routeKey joins a local and remote domain the way "route-key =
// local-domain/remote-domain" does.
func routeKey(local, remote string) string {
	return local + "/" + remote
}

// Route tracks one local/remote dialback route on a PeerConn, along with
// the time it last changed state (consulted by the IN_PROGRESS reaper).
type Route struct {
	State     RouteState
	StateTime time.Time
}

// PeerConn is one S2S peer connection, either dialed out to a remote
// server or accepted from one, carrying every route currently being
// negotiated or already validated across it. Each PeerConn is driven by
// its own Stream.Run goroutine watched by the reactor, so it carries a
// mutex the same way c2s.Session and router.Table do for their own
// goroutine-per-connection state.
type PeerConn struct {
	Direction Direction
	Stream    *sx.Stream
	IP        string
	Port      int

	mu           sync.Mutex
	online       bool
	initTime     time.Time
	lastActivity time.Time
	lastPacket   time.Time
	routes       map[string]*Route // route-key -> route
	verify       int
	lastVerify   time.Time
}

// NewPeerConn returns a PeerConn wrapping stream, initialized at the
// current time.
func NewPeerConn(dir Direction, stream *sx.Stream, ip string, port int, now time.Time) *PeerConn {
	return &PeerConn{
		Direction:    dir,
		Stream:       stream,
		IP:           ip,
		Port:         port,
		initTime:     now,
		lastActivity: now,
		lastPacket:   now,
		routes:       make(map[string]*Route),
	}
}

// MarkOnline records that the outgoing TCP connection completed and the
// stream header exchange finished: the "online" check before reusing a
// connection.
func (p *PeerConn) MarkOnline() {
	p.mu.Lock()
	p.online = true
	p.mu.Unlock()
}

// Online reports whether the connection has completed its stream header
// handshake.
func (p *PeerConn) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// InitTime returns when the connection was created.
func (p *PeerConn) InitTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initTime
}

// Touch records stanza-carrying activity on the connection (both
// last_activity and last_packet), for the reaper.
func (p *PeerConn) Touch(now time.Time) {
	p.mu.Lock()
	p.lastActivity = now
	p.lastPacket = now
	p.mu.Unlock()
}

// TouchKeepalive records a keepalive write without resetting last_packet,
// so an idle-but-pinged connection still eventually hits the idle
// timeout if the peer never replies with real traffic.
func (p *PeerConn) TouchKeepalive(now time.Time) {
	p.mu.Lock()
	p.lastActivity = now
	p.mu.Unlock()
}

// LastActivity returns the last time Touch or TouchKeepalive ran.
func (p *PeerConn) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// LastPacket returns the last time Touch ran (i.e. real traffic, not a
// keepalive write), consulted by the idle reaper.
func (p *PeerConn) LastPacket() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPacket
}

// SetRoute installs or overwrites the route state for local/remote,
// stamping StateTime with now.
func (p *PeerConn) SetRoute(local, remote string, state RouteState, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[routeKey(local, remote)] = &Route{State: state, StateTime: now}
}

// Route returns a copy of the route state for local/remote, if any.
func (p *PeerConn) Route(local, remote string) (Route, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.routes[routeKey(local, remote)]
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// Routes returns every route-key currently tracked on this connection,
// paired with its state, consulted by the reaper sweep.
func (p *PeerConn) Routes() map[string]Route {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Route, len(p.routes))
	for k, r := range p.routes {
		out[k] = *r
	}
	return out
}

// RemoveRoute drops local/remote from the tracked route set, used once a
// route is torn down (timeout, invalidated, or connection closing).
func (p *PeerConn) RemoveRoute(local, remote string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.routes, routeKey(local, remote))
}

// BeginVerify records that a verify substream was opened for this
// incoming connection, tracking the attempt count and the time of the
// most recent attempt.
func (p *PeerConn) BeginVerify(now time.Time) {
	p.mu.Lock()
	p.verify++
	p.lastVerify = now
	p.mu.Unlock()
}

// VerifyCount returns how many verify substreams have been opened for
// this incoming connection.
func (p *PeerConn) VerifyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verify
}

// LastVerify returns the time of the most recent BeginVerify call.
func (p *PeerConn) LastVerify() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVerify
}

// Table is the gateway's registry of peer connections, keyed by
// "ip/port". Mirrors c2s.Table's and router.Table's shape: each PeerConn
// runs its own Stream.Run goroutine, so the table itself needs a mutex.
type Table struct {
	mu    sync.RWMutex
	conns map[string]*PeerConn
}

// NewTable returns an empty peer connection Table.
func NewTable() *Table {
	return &Table{conns: make(map[string]*PeerConn)}
}

// ipport formats the dialback connection key.
func ipport(ip string, port int) string {
	return ip + "/" + strconv.Itoa(port)
}

// Put registers conn under its own ip/port key.
func (t *Table) Put(conn *PeerConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[ipport(conn.IP, conn.Port)] = conn
}

// Lookup finds the peer connection bound to ip/port, if any.
func (t *Table) Lookup(ip string, port int) (*PeerConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[ipport(ip, port)]
	return c, ok
}

// Remove drops the connection for ip/port.
func (t *Table) Remove(ip string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, ipport(ip, port))
}

// RemoveStream drops whichever connection wraps s, used on stream close.
func (t *Table) RemoveStream(s *sx.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, c := range t.conns {
		if c.Stream == s {
			delete(t.conns, key)
		}
	}
}

// All returns every currently tracked peer connection, consulted by the
// reaper sweep.
func (t *Table) All() []*PeerConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*PeerConn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}
