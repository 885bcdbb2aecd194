// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"net"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return logrus.NewEntry(l)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// newTestPeerStream builds a zero(-or-given)-plugin stream the way a real
// S2S peer connection runs one: Server Dialback elements are ordinary
// top-level stanzas exchanged immediately after the stream header, never
// gated behind negotiated <stream:features/>.
func newTestPeerStream(conn net.Conn, plugins []sx.Plugin) *sx.Stream {
	return sx.New(conn, nad.NewCache(), plugins, sx.None, discardLog())
}
