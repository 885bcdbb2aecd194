// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
	"git.sr.ht/~xmppd/xmppd/nad"
)

// routeElem is the index of a <route/> wrapper's single stanza child, or
// nad.None if it carried none, mirroring router/forward.go's helper of
// the same name for the same wire format.
func routeElem(n *nad.NAD) int {
	root := n.Root()
	if root == nad.None {
		return nad.None
	}
	return n.FirstChild(root)
}

// copyElement deep-copies the subtree rooted at srcElem in src into dst
// under dstParent, the same traversal router/forward.go uses to move a
// stanza between NADs bound to different caches.
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

// sendStanzaToRouter wraps a stanza a client just sent (stanzaElem's root
// in n) in a <route> envelope and queues it on the router link, the
// outbound half of a session's traffic.
func (g *Gateway) sendStanzaToRouter(n *nad.NAD, from string) error {
	root := n.Root()
	to, _ := n.Attr(root, "to")
	wrapped := wrapRoute(g.cache, n, root, to, from, "unicast")
	defer wrapped.Free()
	return g.link.stream.QueueNAD(wrapped, nil)
}

// announceSession sends the <route type='session'/> notification
// §4.3 calls for once a resource is bound ("notifies the router...so the
// SM is aware"). It addresses the envelope to the gateway's own bound
// component name: the router looks that name up in its table, finds our
// own link, and forwards it straight back to us, where
// handleInboundRoute recognizes type='session' and only logs it rather
// than trying to deliver it to a bound resource. This keeps the
// notification inside the existing forwarding algorithm instead of
// requiring a dedicated message on the wire.
func (g *Gateway) announceSession(fullJID string) error {
	out := g.cache.Get()
	defer out.Free()
	wrapper := out.AppendElement(nad.None, "route", ns.Route)
	out.AppendAttr(wrapper, "to", "", g.realm)
	out.AppendAttr(wrapper, "from", "", fullJID)
	out.AppendAttr(wrapper, "type", "", "session")
	return g.link.stream.QueueNAD(out, nil)
}

// handleInboundRoute is the App handler installed on the router link's
// Stream: every NAD the router forwards to our bound component name
// arrives here as a <route> envelope.
func (g *Gateway) handleInboundRoute(n *nad.NAD) {
	root := n.Root()
	if root == nad.None || n.ElementName(root) != "route" || n.ElementNamespace(root) != ns.Route {
		return
	}
	routeType, _ := n.Attr(root, "type")
	if routeType == "session" {
		g.log.WithField("from", attrOrEmpty(n, root, "from")).Debug("c2s: session notification looped back")
		return
	}

	stanza := routeElem(n)
	if stanza == nad.None {
		return
	}
	to, _ := n.Attr(root, "to")

	local, domain, resource, err := jid.SplitString(to)
	if err != nil || domain == "" {
		g.bounceFromRouter(n, stanza, "jid-malformed")
		return
	}
	bareJID := local + "@" + domain
	if local == "" {
		bareJID = domain
	}

	if resource != "" {
		sess, ok := g.sessions.Lookup(bareJID, resource)
		if !ok {
			g.bounceFromRouter(n, stanza, "recipient-unavailable")
			return
		}
		g.deliver(sess, n, stanza)
		return
	}

	sessions := g.sessions.Resources(bareJID)
	if len(sessions) == 0 {
		g.bounceFromRouter(n, stanza, "recipient-unavailable")
		return
	}
	for _, sess := range sessions {
		g.deliver(sess, n, stanza)
	}
}

func (g *Gateway) deliver(sess *Session, n *nad.NAD, stanzaElem int) {
	out := nad.New()
	copyElement(n, stanzaElem, out, nad.None)
	_ = sess.Stream.QueueNAD(out, nil)
	sess.Touch(g.now())
}

// bounceFromRouter replies to a route envelope whose stanza could not be
// delivered, bouncing it back through the router link to whoever sent
// it, unless the enclosed stanza is itself an error (avoiding bounce
// loops, the same guard router/forward.go applies).
func (g *Gateway) bounceFromRouter(n *nad.NAD, stanzaElem int, condition string) {
	root := n.Root()
	if errType, _ := n.Attr(stanzaElem, "type"); errType == "error" {
		return
	}
	from, _ := n.Attr(root, "from")
	to, _ := n.Attr(root, "to")

	inner := nad.New()
	copyElement(n, stanzaElem, inner, nad.None)
	innerRoot := inner.Root()

	name := inner.ElementName(innerRoot)
	namespace := inner.ElementNamespace(innerRoot)
	out := g.cache.Get()
	outRoot := out.AppendElement(nad.None, name, namespace)
	out.AppendAttr(outRoot, "to", "", from)
	out.AppendAttr(outRoot, "from", "", to)
	if id, ok := inner.Attr(innerRoot, "id"); ok {
		out.AppendAttr(outRoot, "id", "", id)
	}
	out.AppendAttr(outRoot, "type", "", "error")
	errElem := out.AppendElement(outRoot, "error", "")
	out.AppendAttr(errElem, "type", "", "cancel")
	out.AppendElement(errElem, condition, ns.Stanza)
	inner.Free()

	wrapped := wrapRoute(g.cache, out, outRoot, from, to, "unicast")
	out.Free()
	defer wrapped.Free()
	_ = g.link.stream.QueueNAD(wrapped, nil)
}

func attrOrEmpty(n *nad.NAD, elem int, name string) string {
	v, _ := n.Attr(elem, name)
	return v
}
