// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants shared by the sx, router, c2s,
// and s2s packages.
package ns // import "git.sr.ht/~xmppd/xmppd/internal/ns"

// List of commonly used namespaces.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	XML      = "http://www.w3.org/XML/1998/namespace"

	// Stream is the namespace of the stream:stream wrapper element.
	Stream = "http://etherx.jabber.org/streams"

	// Client is the default content namespace of a client-facing stream.
	Client = "jabber:client"

	// Server is the default content namespace of a server-to-server stream.
	Server = "jabber:server"

	// Component is the default content namespace of the router's component
	// protocol.
	Component = "jabber:component:accept"

	// Dialback is the namespace used for Server Dialback key exchange.
	Dialback = "jabber:server:dialback"

	// Stanza is the namespace of stanza-level <error/> conditions.
	Stanza = "urn:ietf:params:xml:ns:xmpp-stanzas"

	// Streams is the namespace of stream-level <error/> condition
	// elements (distinct from Stream, the stream:stream wrapper itself).
	Streams = "urn:ietf:params:xml:ns:xmpp-streams"

	// Route is the namespace of the <route/> wrapper used on the component
	// protocol to carry application stanzas between a component and the
	// router.
	Route = "http://xmppd.im/protocol/route"

	// Session is the (legacy, still widely sent) namespace of the
	// post-bind <session/> IQ the C2S gateway acknowledges as a no-op
	//.
	Session = "urn:ietf:params:xml:ns:xmpp-session"

	// Register is the namespace of in-band registration (XEP-0077),
	// consumed by the C2S gateway pre-auth.
	Register = "jabber:iq:register"

	// RegisterFeature is the <stream:features/> child namespace used to
	// advertise in-band registration, as distinct from the jabber:iq:
	// register namespace of the <query/> payload itself.
	RegisterFeature = "http://jabber.org/features/iq-register"
)
