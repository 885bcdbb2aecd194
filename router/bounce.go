// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/stanza"
)

// Bounce conditions for router and S2S forwarding failures. Every condition except
// host-unknown has a matching RFC 6120 §8.3.3 constant in stanza, so
// those borrow stanza's own values rather than re-stating the condition
// strings; host-unknown is only ever a stream-level condition in this
// module (never one of stanza's stanza-error constants), so it stays a
// plain literal. The router still builds bounces directly at the NAD
// level rather than through stanza.Error itself: that type marshals as
// a single fixed shape, while the router's bounce needs to swap to/from
// and preserve the original stanza's id on an arbitrary element name.
const (
	bounceHostUnknown          = "host-unknown"
	bounceNotAuthorized        = string(stanza.NotAuthorized)
	bounceRecipientUnavailable = string(stanza.RecipientUnavailable)
	bouncePolicyViolation      = string(stanza.PolicyViolation)
	bounceRemoteServerNotFound = string(stanza.RemoteServerNotFound)
	bounceRemoteServerTimeout  = string(stanza.RemoteServerTimeout)
	bounceServiceUnavailable   = string(stanza.ServiceUnavailable)
)

// bounce builds a new NAD that is orig turned into an error reply: to and
// from are swapped, a type='error' attribute replaces any existing type,
// and an <error> child naming condition is appended in the stanzas
// namespace. orig is left untouched; the caller is responsible for
// freeing the returned NAD once it has been queued.
func bounce(c *nad.Cache, orig *nad.NAD, errType, condition string) *nad.NAD {
	root := orig.Root()
	if root == nad.None {
		return nil
	}
	name := orig.ElementName(root)
	namespace := orig.ElementNamespace(root)

	out := c.Get()
	outRoot := out.AppendElement(nad.None, name, namespace)

	to, _ := orig.Attr(root, "to")
	from, _ := orig.Attr(root, "from")
	id, hasID := orig.Attr(root, "id")

	if from != "" {
		out.AppendAttr(outRoot, "to", "", from)
	}
	if to != "" {
		out.AppendAttr(outRoot, "from", "", to)
	}
	if hasID {
		out.AppendAttr(outRoot, "id", "", id)
	}
	out.AppendAttr(outRoot, "type", "", "error")

	errElem := out.AppendElement(outRoot, "error", "")
	out.AppendAttr(errElem, "type", "", errType)
	out.AppendElement(errElem, condition, ns.Stanza)

	return out
}

// bounceCancel builds a type='cancel' bounce, the type used for
// unrecoverable routing failures.
func bounceCancel(c *nad.Cache, orig *nad.NAD, condition string) *nad.NAD {
	return bounce(c, orig, "cancel", condition)
}

// bounceWait builds a type='wait' bounce, the type used for transient
// failures a sender might usefully retry.
func bounceWait(c *nad.Cache, orig *nad.NAD, condition string) *nad.NAD {
	return bounce(c, orig, "wait", condition)
}
