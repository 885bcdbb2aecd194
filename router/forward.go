// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// routeElem is the index of the <route/> wrapper's single stanza child, or
// nad.None if the wrapper carried none.
func routeElem(n *nad.NAD) int {
	root := n.Root()
	if root == nad.None {
		return nad.None
	}
	return n.FirstChild(root)
}

// forwardFromStream is the Component.Stream App handler installed by
// Attach for every top-level element that is not a bind/unbind request: it
// expects the jabber:component:accept wire format, a
// <route to='...' from='...' type='...'> wrapper around exactly one
// application stanza, and runs it through the forwarding algorithm.
// forwardFromStream never frees n: it is owned by Stream.Run, which frees
// it once App returns.
func (r *Router) forwardFromStream(s *sx.Stream, n *nad.NAD) {
	root := n.Root()
	if root == nad.None || n.ElementName(root) != "route" || n.ElementNamespace(root) != ns.Route {
		return
	}

	source, ok := r.table.componentFor(s)
	if !ok || !r.table.PermitRoute(source.Name) {
		return
	}

	to, _ := n.Attr(root, "to")
	from, _ := n.Attr(root, "from")
	routeType, _ := n.Attr(root, "type")

	r.Forward(source, to, from, routeType, n)
}

// Forward runs the forwarding algorithm over a single
// <route> wrapper NAD (n, including its wrapper element) originating from
// source. n is not freed here; Stream.Run owns its lifetime.
func (r *Router) Forward(source *Component, to, from, routeType string, n *nad.NAD) {
	_, domain, _, err := jid.SplitString(to)
	if err != nil || domain == "" {
		domain = to
	}
	domain = r.table.ResolveAlias(domain)

	dest, ok := r.table.Lookup(domain)
	if !ok {
		if domain == r.id {
			r.bounceStanza(source, n, bounceCancel, bounceHostUnknown)
			return
		}
		dest, ok = r.table.DefaultRoute()
		if !ok {
			r.bounceStanza(source, n, bounceCancel, bounceHostUnknown)
			return
		}
	}

	if dest.Limiter != nil {
		var buf countingWriter
		_, _ = n.WriteTo(&buf)
		if !dest.Limiter.Allow(int64(buf.n)) {
			// Suspend reads from the offending source for the configured
			// throttle duration (Stream.Throttle on the source's stream).
			r.suspend(source)
		}
	}

	if r.logger != nil {
		r.logRoute(source, to, from, routeType, n)
	}

	_ = dest.Stream.QueueNAD(n, nil)
}

// bounceStanza sends a reply built from n's enclosed stanza back to
// source, unless the enclosed stanza is itself an error (to avoid bounce
// loops) or source no longer has a live stream.
func (r *Router) bounceStanza(source *Component, n *nad.NAD, build func(*nad.Cache, *nad.NAD, string) *nad.NAD, condition string) {
	stanza := routeElem(n)
	if stanza == nad.None || source == nil || source.Stream == nil {
		return
	}
	if errType, _ := n.Attr(stanza, "type"); errType == "error" {
		return
	}

	inner := build(r.cache, innerNAD(n, stanza), condition)
	if inner == nil {
		return
	}
	defer inner.Free()

	wrapped := wrapRoute(r.cache, inner, inner.Root(), "")
	defer wrapped.Free()
	_ = source.Stream.QueueNAD(wrapped, nil)
}

// innerNAD copies the subtree rooted at elem in n into its own NAD, since
// bounce (bounce.go) expects a NAD whose Root is the stanza itself.
func innerNAD(n *nad.NAD, elem int) *nad.NAD {
	out := nad.New()
	copyElement(n, elem, out, nad.None)
	return out
}

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
// <route type='unicast'> NAD addressed to 'to', taking its destination
// from the stanza's own to attribute when to is empty.
func wrapRoute(c *nad.Cache, src *nad.NAD, stanzaElem int, to string) *nad.NAD {
	if to == "" {
		to, _ = src.Attr(stanzaElem, "to")
	}
	from, _ := src.Attr(stanzaElem, "from")

	out := c.Get()
	wrapper := out.AppendElement(nad.None, "route", ns.Route)
	out.AppendAttr(wrapper, "to", "", to)
	out.AppendAttr(wrapper, "from", "", from)
	out.AppendAttr(wrapper, "type", "", "unicast")
	copyElement(src, stanzaElem, out, wrapper)
	return out
}

// countingWriter implements io.Writer, counting bytes written to size a
// NAD without materializing it, for rate-limit accounting.
type countingWriter struct{ n int }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func (t *Table) componentFor(s *sx.Stream) (*Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.routes {
		if c.Stream == s {
			return c, true
		}
	}
	return nil, false
}
