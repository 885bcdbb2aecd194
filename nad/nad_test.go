// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package nad_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/nad"
)

func TestParseBuildsTree(t *testing.T) {
	const doc = `<iq xmlns="jabber:client" to="alice@example.com" type="get"><query xmlns="jabber:iq:roster"></query></iq>`
	nd, err := nad.Parse(strings.NewReader(doc), nil)
	require.NoError(t, err)

	root := nd.Root()
	require.Equal(t, "iq", nd.ElementName(root))
	require.Equal(t, "jabber:client", nd.ElementNamespace(root))
	require.Equal(t, 0, nd.Depth(root))

	to, ok := nd.Attr(root, "to")
	require.True(t, ok)
	require.Equal(t, "alice@example.com", to)

	child := nd.FirstChild(root)
	require.NotEqual(t, nad.None, child)
	require.Equal(t, "query", nd.ElementName(child))
	require.Equal(t, 1, nd.Depth(child))
	require.Equal(t, root, nd.Parent(child))
	require.Equal(t, nad.None, nd.NextSibling(child))
}

func TestRoundTripIsByteEqual(t *testing.T) {
	const doc = `<message xmlns="jabber:client" to="bob@example.com" from="alice@example.com" type="chat"><body>hello &amp; goodbye</body><thread>abc123</thread></message>`

	nd, err := nad.Parse(strings.NewReader(doc), nil)
	require.NoError(t, err)

	var buf strings.Builder
	_, err = nd.WriteTo(&buf)
	require.NoError(t, err)
	first := buf.String()
	require.Equal(t, doc, first)

	nd2, err := nad.Parse(strings.NewReader(first), nil)
	require.NoError(t, err)
	var buf2 strings.Builder
	_, err = nd2.WriteTo(&buf2)
	require.NoError(t, err)

	require.Equal(t, first, buf2.String())
}

func TestCacheReusesBackingArrays(t *testing.T) {
	c := nad.NewCache()
	require.Equal(t, 0, c.Len())

	nd := c.Get()
	nd.AppendElement(nad.None, "presence", "jabber:client")
	nd.Free()
	require.Equal(t, 1, c.Len())

	nd2 := c.Get()
	require.Equal(t, 0, c.Len())
	require.Equal(t, nad.None, nd2.Root())
}

func TestMultipleCharDataTokensConcatenate(t *testing.T) {
	const doc = `<body>a &amp; b</body>`
	nd, err := nad.Parse(strings.NewReader(doc), nil)
	require.NoError(t, err)
	require.Equal(t, "a & b", nd.ElementCData(nd.Root()))
}
