// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRouterBuildsTableAndLogger(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(Config{
		ID:    "example.com",
		Users: UserTable{Domain: "example.com", Users: map[string]string{"sm": "secret"}},
		MessageLog: MessageLogConfig{
			Path: filepath.Join(dir, "message.log"),
		},
		Log: discardLogRouter(),
	})
	require.NoError(t, err)
	require.NotNil(t, r.table)
	require.NotNil(t, r.logger)
	require.Equal(t, "example.com", r.id)
}

func TestRouterShutdownClosesBoundComponents(t *testing.T) {
	r, err := NewRouter(Config{ID: "example.com", Log: discardLogRouter()})
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go func() { _, _ = io.Copy(io.Discard, clientConn) }()

	s := newTestStream(serverConn)
	require.NoError(t, r.table.Bind("sm.example", &Component{Name: "sm.example", Stream: s}))

	done := make(chan struct{})
	go func() {
		r.Shutdown(10 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	_, ok := r.table.Lookup("sm.example")
	require.False(t, ok)
}

func TestRouterAcceptComponentUnbindsOnClose(t *testing.T) {
	r, err := NewRouter(Config{
		ID:    "example.com",
		Users: UserTable{Domain: "example.com", Users: map[string]string{"sm": "secret"}},
		Log:   discardLogRouter(),
	})
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	r.acceptComponent(serverConn)

	// Closing the client side ends the stream's read loop; acceptComponent's
	// Watch callback must then unbind anything registered for that stream
	// and mark it in the dead queue via the reactor dispatch goroutine.
	clientConn.Close()
	r.Run(time.Second)

	require.Equal(t, 0, len(r.table.Components()))
}

func TestRouterSuspendThrottlesComponentStream(t *testing.T) {
	r, err := NewRouter(Config{ID: "example.com", Rate: BindRate{Throttle: 50 * time.Millisecond}, Log: discardLogRouter()})
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	s := newTestStream(serverConn)
	c := &Component{Name: "sm.example", Stream: s}

	start := time.Now()
	r.suspend(c)
	// Throttle only records a deadline; it must not itself block the
	// caller (the deadline is consumed by Stream.Run's loop instead).
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRouterSuspendIgnoresUnboundComponent(t *testing.T) {
	r, err := NewRouter(Config{ID: "example.com", Log: discardLogRouter()})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		r.suspend(nil)
		r.suspend(&Component{Name: "sm.example"})
	})
}
