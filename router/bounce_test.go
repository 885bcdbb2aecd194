// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
)

func TestBounceSwapsToFromAndAppendsError(t *testing.T) {
	cache := nad.NewCache()
	orig := cache.Get()
	root := orig.AppendElement(nad.None, "message", ns.Client)
	orig.AppendAttr(root, "to", "", "missing@gone.example")
	orig.AppendAttr(root, "from", "", "alice@example.com")
	orig.AppendAttr(root, "id", "", "abc123")

	out := bounceCancel(cache, orig, bounceHostUnknown)
	require.NotNil(t, out)
	defer out.Free()

	outRoot := out.Root()
	require.Equal(t, "message", out.ElementName(outRoot))

	to, ok := out.Attr(outRoot, "to")
	require.True(t, ok)
	require.Equal(t, "alice@example.com", to)

	from, ok := out.Attr(outRoot, "from")
	require.True(t, ok)
	require.Equal(t, "missing@gone.example", from)

	typ, ok := out.Attr(outRoot, "type")
	require.True(t, ok)
	require.Equal(t, "error", typ)

	errElem := out.FirstChild(outRoot)
	require.NotEqual(t, nad.None, errElem)
	require.Equal(t, "error", out.ElementName(errElem))
	errType, _ := out.Attr(errElem, "type")
	require.Equal(t, "cancel", errType)

	cond := out.FirstChild(errElem)
	require.NotEqual(t, nad.None, cond)
	require.Equal(t, "host-unknown", out.ElementName(cond))
	require.Equal(t, ns.Stanza, out.ElementNamespace(cond))

	var buf bytes.Buffer
	_, err := out.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "host-unknown")
}

func TestBounceWaitUsesWaitErrorType(t *testing.T) {
	cache := nad.NewCache()
	orig := cache.Get()
	root := orig.AppendElement(nad.None, "iq", ns.Server)
	orig.AppendAttr(root, "to", "", "remote.example")
	orig.AppendAttr(root, "from", "", "example.com")

	out := bounceWait(cache, orig, bounceRemoteServerTimeout)
	defer out.Free()

	errElem := out.FirstChild(out.Root())
	errType, _ := out.Attr(errElem, "type")
	require.Equal(t, "wait", errType)
}
