// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mio implements the single-dispatch-point reactor described in
// listen/connect/read/write/close plus run(timeout), with
// every callback invoked synchronously from one dispatch goroutine so
// business logic (router/c2s/s2s) never needs a lock.
//
// Go doesn't expose a portable non-blocking socket API the way the C
// original's raw epoll/kqueue loop does, so this is rendered as the
// idiomatic Go equivalent: one goroutine per blocking syscall (accept,
// read) feeding a single buffered event channel that Run drains in
// FIFO order and dispatches on the caller's goroutine. Each listener gets
// its own accept goroutine; the Linux epoll wait in poller_unix.go
// (golang.org/x/sys/unix) is not used by the Reactor.
package mio // import "git.sr.ht/~xmppd/xmppd/mio"
