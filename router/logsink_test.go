// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
)

func buildMessageNAD(c *nad.Cache, to, from, body string) *nad.NAD {
	n := c.Get()
	root := n.AppendElement(nad.None, "route", ns.Route)
	n.AppendAttr(root, "to", "", to)
	n.AppendAttr(root, "from", "", from)
	n.AppendAttr(root, "type", "", "unicast")
	msg := n.AppendElement(root, "message", ns.Client)
	n.AppendAttr(msg, "to", "", to)
	n.AppendAttr(msg, "from", "", from)
	b := n.AppendElement(msg, "body", "")
	n.AppendCData(b, body)
	return n
}

func TestMessageLoggerWritesMessageLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "message.log")

	l, err := newMessageLogger(MessageLogConfig{Path: path})
	require.NoError(t, err)

	cache := nad.NewCache()
	n := buildMessageNAD(cache, "bob@example.com", "alice@example.com", "hi bob")
	stanzaElem := n.FirstChild(n.Root())

	l.log(n, stanzaElem, "bob@example.com", "alice@example.com")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hi bob")
	require.Contains(t, string(data), "alice@example.com")
}

func TestMessageLoggerSuppressesFilteredDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "message.log")

	l, err := newMessageLogger(MessageLogConfig{
		Path:          path,
		FilterMUCFrom: map[string]bool{"muc.example": true},
	})
	require.NoError(t, err)

	cache := nad.NewCache()
	n := buildMessageNAD(cache, "bob@example.com", "room@muc.example", "hidden")
	stanzaElem := n.FirstChild(n.Root())

	l.log(n, stanzaElem, "bob@example.com", "room@muc.example")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestMessageLoggerRotatesOnMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "message.log")

	l, err := newMessageLogger(MessageLogConfig{Path: path, MaxBytes: 10})
	require.NoError(t, err)

	cache := nad.NewCache()
	n := buildMessageNAD(cache, "bob@example.com", "alice@example.com", "this line is long enough to rotate")
	stanzaElem := n.FirstChild(n.Root())

	l.log(n, stanzaElem, "bob@example.com", "alice@example.com")

	_, err = os.Stat(path + ".1")
	require.NoError(t, err, "expected a rotated file to exist")
}
