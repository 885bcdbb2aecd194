// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/mio"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// Config gathers everything Router needs at construction, mirroring
// the router's configuration surface.
type Config struct {
	// ID is the router's own domain, compared against an unresolved
	// destination domain to distinguish "this is us" from "foreign
	// domain with no route".
	ID string

	// DefaultName is the component name that, once bound, becomes the
	// catch-all default route  — normally the S2S
	// gateway's bound name.
	DefaultName string

	BindACL  *accesslist.List
	RouteACL *accesslist.List

	Users UserTable
	Rate  BindRate

	MessageLog MessageLogConfig

	Log *logrus.Entry
}

// Router is the top-level jabberd2-style router process : it
// accepts component connections on the reactor, drives each through SASL
// DIGEST-MD5 and the bind protocol, and forwards application stanzas
// according to its route table.
type Router struct {
	id      string
	table   *Table
	reactor *mio.Reactor
	cache   *nad.Cache
	creds   *UserTable
	rate    BindRate
	logger  *messageLogger
	log     *logrus.Entry
	deadq   sx.DeadQueue
}

// NewRouter constructs a Router from cfg. The caller still owns starting
// listeners via Listen.
func NewRouter(cfg Config) (*Router, error) {
	logger, err := newMessageLogger(cfg.MessageLog)
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	users := cfg.Users
	table := NewTable(cfg.BindACL, cfg.RouteACL)
	table.SetDefaultName(cfg.DefaultName)
	return &Router{
		id:      cfg.ID,
		table:   table,
		reactor: mio.New(log),
		cache:   nad.NewCache(),
		creds:   &users,
		rate:    cfg.Rate,
		logger:  logger,
		log:     log,
	}, nil
}

// Listen starts accepting component connections on addr.
func (r *Router) Listen(network, addr string) error {
	_, err := r.reactor.Listen(network, addr, func(act mio.Action, conn net.Conn, err error) {
		if act != mio.Accept || err != nil {
			return
		}
		r.acceptComponent(conn)
	})
	return err
}

// Run waits up to timeout for one reactor event, dispatches it, and then
// flushes the dead queue; a typical caller loops `for { r.Run(time.Second) }`.
func (r *Router) Run(timeout time.Duration) {
	r.reactor.Run(timeout)
	r.deadq.Flush()
}

// Shutdown closes every bound component's stream, flushing its write queue
// first while the grace period has not yet run out, then clears the table
// and closes the reactor's listeners.
func (r *Router) Shutdown(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for _, c := range r.table.LogSinks() {
		closeGracefully(c.Stream, deadline)
	}
	for _, c := range r.table.Components() {
		closeGracefully(c.Stream, deadline)
	}
	r.table.Clear()
	_ = r.reactor.Close()
	r.deadq.Flush()
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

func (r *Router) acceptComponent(conn net.Conn) {
	s := sx.New(conn, r.cache, []sx.Plugin{
		sx.SASLPlugin(r.creds),
	}, sx.None, r.log)
	s.Namespace = ns.Component

	r.table.Attach(s, r.rate, r)

	r.reactor.Watch(conn, func() error {
		if err := s.Accept(); err != nil {
			return err
		}
		return s.Run()
	}, func(act mio.Action, _ net.Conn, _ error) {
		r.table.UnbindStream(s)
		r.deadq.Mark(s)
	})
}

// suspend pauses reads from a component whose outbound traffic overran a
// destination's byte-rate bucket.
func (r *Router) suspend(c *Component) {
	if c == nil || c.Stream == nil {
		return
	}
	c.Stream.Throttle(r.rate.Throttle)
}
