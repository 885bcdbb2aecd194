// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
	"git.sr.ht/~xmppd/xmppd/nad"
)

// routeElem is the index of a <route/> wrapper's single stanza child, or
// nad.None if it carried none (mirrors router/forward.go's and
// c2s/forward.go's helper of the same name for the same wire format).
func routeElem(n *nad.NAD) int {
	root := n.Root()
	if root == nad.None {
		return nad.None
	}
	return n.FirstChild(root)
}

// copyElement deep-copies the subtree rooted at srcElem in src into dst
// under dstParent.
func copyElement(src *nad.NAD, srcElem int, dst *nad.NAD, dstParent int) int {
	dstElem := dst.AppendElement(dstParent, src.ElementName(srcElem), src.ElementNamespace(srcElem))
	for _, a := range src.Attrs(srcElem) {
		dst.AppendAttr(dstElem, src.AttrName(a), src.AttrNamespace(a), src.AttrValue(a))
	}
	if cdata := src.ElementCData(srcElem); cdata != "" {
		dst.AppendCData(dstElem, cdata)
	}
	for c := src.FirstChild(srcElem); c != nad.None; c = src.NextSibling(c) {
		copyElement(src, c, dst, dstElem)
	}
	return dstElem
}

// wrapRoute copies the subtree rooted at stanzaElem in src into a fresh
// <route> envelope of type routeType addressed to/from, ready to queue on
// the router link.
func wrapRoute(c *nad.Cache, src *nad.NAD, stanzaElem int, to, from, routeType string) *nad.NAD {
	out := c.Get()
	wrapper := out.AppendElement(nad.None, "route", ns.Route)
	out.AppendAttr(wrapper, "to", "", to)
	out.AppendAttr(wrapper, "from", "", from)
	out.AppendAttr(wrapper, "type", "", routeType)
	copyElement(src, stanzaElem, out, wrapper)
	return out
}

// sendStanzaToRouter wraps a stanza a remote peer delivered (stanzaElem's
// root in n) in a <route> envelope and queues it on the router link.
func (g *Gateway) sendStanzaToRouter(n *nad.NAD, stanzaElem int, to, from string) error {
	wrapped := wrapRoute(g.cache, n, stanzaElem, to, from, "unicast")
	defer wrapped.Free()
	return g.link.stream.QueueNAD(wrapped, nil)
}

// handleInboundRoute is the App handler installed on the router link's
// Stream: every stanza the router forwards to us (because we are bound
// as its DefaultRoute) arrives here as a <route>
// envelope addressed to some remote domain.
func (g *Gateway) handleInboundRoute(n *nad.NAD) {
	root := n.Root()
	if root == nad.None || n.ElementName(root) != "route" || n.ElementNamespace(root) != ns.Route {
		return
	}
	stanza := routeElem(n)
	if stanza == nad.None {
		return
	}
	to, _ := n.Attr(root, "to")
	from, _ := n.Attr(root, "from")

	_, remote, _, err := jid.SplitString(to)
	if err != nil || remote == "" {
		remote = to
	}

	out := nad.New()
	copyElement(n, stanza, out, nad.None)
	g.sendToRemote(remote, from, to, out)
}

// bounceToRouter replies to a stanza that could not be delivered across
// S2S, bouncing it back through the router link to whoever sent it,
// unless the enclosed stanza is itself an error (avoiding bounce loops,
// the same guard c2s/forward.go and router/forward.go apply).
func (g *Gateway) bounceToRouter(stanza *nad.NAD, to, from, condition string) {
	root := stanza.Root()
	if errType, _ := stanza.Attr(root, "type"); errType == "error" {
		return
	}

	name := stanza.ElementName(root)
	namespace := stanza.ElementNamespace(root)
	out := g.cache.Get()
	outRoot := out.AppendElement(nad.None, name, namespace)
	out.AppendAttr(outRoot, "to", "", from)
	out.AppendAttr(outRoot, "from", "", to)
	if id, ok := stanza.Attr(root, "id"); ok {
		out.AppendAttr(outRoot, "id", "", id)
	}
	out.AppendAttr(outRoot, "type", "", "error")
	errElem := out.AppendElement(outRoot, "error", "")
	out.AppendAttr(errElem, "type", "", "cancel")
	out.AppendElement(errElem, condition, ns.Stanza)

	wrapped := wrapRoute(g.cache, out, outRoot, from, to, "unicast")
	out.Free()
	defer wrapped.Free()
	_ = g.link.stream.QueueNAD(wrapped, nil)
}
