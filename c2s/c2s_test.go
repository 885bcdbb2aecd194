// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

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

func newTestSessionStream(conn net.Conn) *sx.Stream {
	return sx.New(conn, nad.NewCache(), nil, sx.None, discardLog())
}
