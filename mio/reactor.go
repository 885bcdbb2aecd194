// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mio

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Action identifies the kind of event a dispatched callback is reacting
// to, mirroring jabberd2's MIO ACCEPT/READ/WRITE/CLOSE actions
//.
type Action int

const (
	// Accept is dispatched when a Listen'd socket accepts a new
	// connection.
	Accept Action = iota
	// Connected is dispatched when a Connect'd socket completes dialing
	// (successfully or not).
	Connected
	// Closed is dispatched when a watched connection's read side returns
	// EOF or an error, or after a syscall failure; the fd has already
	// been removed from the reactor.
	Closed
)

// Callback receives reactor events for one registered connection. conn is
// nil for Accept/Connected failures where the dial or accept itself
// returned an error (in which case err is non-nil).
type Callback func(act Action, conn net.Conn, err error)

// event is the fan-in channel payload: every blocking-syscall goroutine
// (accept-loop, or per-connection reader) funnels its result through one
// of these so Run's single dispatch goroutine is the only place that
// ever calls into application code.
type event struct {
	act Action
	cb  Callback
	conn net.Conn
	err  error
}

// Reactor is a single-threaded readiness loop: Listen and Connect
// register new watched endpoints, and Run dispatches Accept/Connected/
// Closed actions synchronously on the calling goroutine, one at a time, in
// the order events complete. No callback may block or spawn
// goroutines that call back into the Reactor directly.
type Reactor struct {
	events chan event
	log    *logrus.Entry

	listeners []net.Listener
	closing   bool
}

// New returns a Reactor ready to accept Listen/Connect registrations.
func New(log *logrus.Entry) *Reactor {
	return &Reactor{
		events: make(chan event, 64),
		log:    log,
	}
}

// Listen starts accepting connections on addr (e.g. "0.0.0.0:5222") and
// reports each one to cb as an Accept event. The accept loop runs in its
// own goroutine; Run is what actually invokes cb.
func (r *Reactor) Listen(network, addr string, cb Callback) (net.Listener, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	r.listeners = append(r.listeners, l)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				r.events <- event{act: Closed, cb: cb, err: err}
				return
			}
			r.events <- event{act: Accept, cb: cb, conn: conn}
		}
	}()
	return l, nil
}

// Connect dials addr and reports the outcome to cb as a Connected event.
// Dialing happens in its own goroutine so Run never blocks on it.
func (r *Reactor) Connect(network, addr string, timeout time.Duration, cb Callback) {
	go func() {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.Dial(network, addr)
		r.events <- event{act: Connected, cb: cb, conn: conn, err: err}
	}()
}

// Watch starts a dedicated reader goroutine for conn (the per-blocking-
// syscall idiom) and reports a Closed event through cb once
// the connection's read side ends. Business logic drives the actual
// application-level reads itself via sx.Stream.Run in that same
// goroutine; Watch exists so the Reactor can still learn about
// connection death and run the dead-queue free on the single dispatch
// goroutine rather than from arbitrary connection goroutines.
func (r *Reactor) Watch(conn net.Conn, runFn func() error, cb Callback) {
	go func() {
		err := runFn()
		r.events <- event{act: Closed, cb: cb, conn: conn, err: err}
	}()
}

// Run waits up to timeout for one event and dispatches it synchronously,
// returning after that event or once timeout passes with none. A timeout
// of 0 blocks until one event is dispatched. After Close, Run returns
// immediately.
func (r *Reactor) Run(timeout time.Duration) {
	if r.closing {
		return
	}
	if timeout <= 0 {
		select {
		case ev, ok := <-r.events:
			if ok {
				r.dispatch(ev)
			}
		}
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev, ok := <-r.events:
		if ok {
			r.dispatch(ev)
		}
	case <-t.C:
	}
}

func (r *Reactor) dispatch(ev event) {
	defer func() {
		if p := recover(); p != nil && r.log != nil {
			r.log.WithField("panic", p).Error("mio: callback panicked")
		}
	}()
	if ev.cb != nil {
		ev.cb(ev.act, ev.conn, ev.err)
	}
}

// Close stops accepting new connections on every Listen'd listener.
// Already-dispatched watches are unaffected; callers close those
// connections themselves via the Closed callback's teardown path.
func (r *Reactor) Close() error {
	r.closing = true
	var first error
	for _, l := range r.listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
