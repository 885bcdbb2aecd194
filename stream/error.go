// Copyright 2015 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package stream contains XMPP stream errors as defined by RFC 6120 §4.9.
//
// Higher-level packages (sx, router, c2s, s2s) wrap these conditions so that
// and not create stream errors directly.
package stream // import "git.sr.ht/~xmppd/xmppd/stream"

import (
	"encoding/xml"
	"io"
	"net"

	"mellium.im/xmlstream"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
)

// Stream-level error conditions, RFC 6120 §4.9.3. Each is a fatal,
// stream-ending error rather than a per-stanza one (see the stanza
// package for those).
var (
	// BadFormat covers XML the server can't process, when no more specific
	// condition below applies.
	BadFormat = Error{Err: "bad-format"}

	// BadNamespacePrefix flags an unsupported or missing namespace prefix
	// on an element that requires one.
	BadNamespacePrefix = Error{Err: "bad-namespace-prefix"}

	// Conflict is sent when a new stream for this entity supersedes or
	// would conflict with one already open (e.g. a per-IP or
	// per-domain-pair connection limit).
	Conflict = Error{Err: "conflict"}

	// ConnectionTimeout is sent when the peer is believed to have
	// permanently lost the ability to communicate over the stream.
	ConnectionTimeout = Error{Err: "connection-timeout"}

	// HostGone reports that the 'to' address names a domain once, but no
	// longer, served here.
	HostGone = Error{Err: "host-gone"}

	// HostUnknown reports that the 'to' address does not name a domain
	// served here.
	HostUnknown = Error{Err: "host-unknown"}

	// ImproperAddressing flags a server-to-server stanza missing a
	// required 'to' or 'from', or one whose value isn't a valid address.
	ImproperAddressing = Error{Err: "improper-addressing"}

	// InternalServerError covers a local misconfiguration or failure that
	// prevents servicing the stream.
	InternalServerError = Error{Err: "internal-server-error"}

	// InvalidFrom reports a 'from' that doesn't match the JID or domain
	// the peer actually authenticated or validated as.
	InvalidFrom = Error{Err: "invalid-from"}

	// InvalidNamespace covers an unexpected stream namespace, or a
	// content namespace other than jabber:client/jabber:server.
	InvalidNamespace = Error{Err: "invalid-namespace"}

	// InvalidXML is sent when validation catches invalid XML on the wire.
	InvalidXML = Error{Err: "invalid-xml"}

	// NotAuthorized is sent when the peer sends stanzas or other data
	// before the stream is authenticated; the offending data MUST NOT be
	// processed before this error goes out.
	NotAuthorized = Error{Err: "not-authorized"}

	// NotWellFormed is sent when the peer violates XML or XML-namespace
	// well-formedness rules.
	NotWellFormed = Error{Err: "not-well-formed"}

	// PolicyViolation covers a local-policy breach, such as exceeding a
	// configured stanza size limit.
	PolicyViolation = Error{Err: "policy-violation"}

	// RemoteConnectionFailed is sent when a remote connection needed for
	// auth or authz could not be established.
	RemoteConnectionFailed = Error{Err: "remote-connection-failed"}

	// Reset is sent when the server must renegotiate the stream: new
	// security-critical features, expired/revoked credentials, or a
	// wrapped TLS sequence number, none of which session resumption can
	// paper over.
	Reset = Error{Err: "reset"}

	// ResourceConstraint is sent when the server lacks the resources to
	// keep servicing the stream.
	ResourceConstraint = Error{Err: "resource-constraint"}

	// RestrictedXML flags disallowed XML features: comments, processing
	// instructions, a DTD subset, or an entity reference.
	RestrictedXML = Error{Err: "restricted-xml"}

	// SystemShutdown is sent to every open stream as the server shuts
	// down.
	SystemShutdown = Error{Err: "system-shutdown"}

	// UndefinedCondition covers anything not matching the conditions
	// above; pair it with an application-specific condition where
	// possible.
	UndefinedCondition = Error{Err: "undefined-condition"}

	// UnsupportedEncoding is sent when the stream isn't encoded as UTF-8.
	UnsupportedEncoding = Error{Err: "unsupported-encoding"}

	// UnsupportedFeature is sent when the peer doesn't support a
	// mandatory-to-negotiate feature this server advertised.
	UnsupportedFeature = Error{Err: "unsupported-feature"}

	// UnsupportedStanzaType is sent for a first-level stream child this
	// server doesn't recognize, by namespace or by element name.
	UnsupportedStanzaType = Error{Err: "unsupported-stanza-type"}

	// UnsupportedVersion is sent when the peer's stream header names an
	// XMPP version this server doesn't support.
	UnsupportedVersion = Error{Err: "unsupported-version"}
)

// SeeOtherHostError returns a new see-other-host error with the given network
// address as the host. If the address appears to be a raw IPv6 address (eg.
// "::1"), the error wraps it in brackets ("[::1]").
func SeeOtherHostError(addr net.Addr, payload xmlstream.TokenReader) Error {
	var cdata string

	// If the address looks like an IPv6 literal, wrap it in []
	if ip := net.ParseIP(addr.String()); ip != nil && ip.To4() == nil && ip.To16() != nil {
		cdata = "[" + addr.String() + "]"
	} else {
		cdata = addr.String()
	}

	if payload != nil {
		payload = xmlstream.MultiReader(
			xmlstream.ReaderFunc(func() (xml.Token, error) {
				return xml.CharData(cdata), io.EOF
			}),
			payload,
		)
	} else {
		payload = xmlstream.ReaderFunc(func() (xml.Token, error) {
			return xml.CharData(cdata), io.EOF
		})
	}

	return Error{Err: "see-other-host", innerXML: payload}
}

// A Error represents an unrecoverable stream-level error that may include
// character data or arbitrary inner XML.
type Error struct {
	Err string

	innerXML xmlstream.TokenReader `xml:"-"`
}

// Error satisfies the builtin error interface and returns the name of the
// StreamError. For instance, given the error:
//
//     <stream:error>
//       <restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/>
//     </stream:error>
//
// Error() would return "restricted-xml".
func (s Error) Error() string {
	return s.Err
}

// UnmarshalXML satisfies the xml package's Unmarshaler interface and allows
// StreamError's to be correctly unmarshaled from XML.
func (s *Error) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	se := struct {
		XMLName xml.Name
		Err     struct {
			XMLName  xml.Name
			InnerXML []byte `xml:",innerxml"`
		} `xml:",any"`
	}{}
	err := d.DecodeElement(&se, &start)
	if err != nil {
		return err
	}
	s.Err = se.Err.XMLName.Local
	// TODO: s.InnerXML = se.Err.InnerXML
	return nil
}

// MarshalXML satisfies the xml package's Marshaler interface and allows
// StreamError's to be correctly marshaled back into XML.
func (s Error) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return s.WriteXML(e, xml.StartElement{})
}

// WriteXML satisfies the xmlstream.Marshaler interface.
// It is like MarshalXML except it writes tokens to w.
func (s Error) WriteXML(w xmlstream.TokenWriter, _ xml.StartElement) error {
	_, err := xmlstream.Copy(w, s.TokenReader(nil))
	if err != nil {
		return err
	}
	return w.Flush()
}

// TokenReader returns a new xmlstream.TokenReader that returns an encoding of
// the error.
func (s Error) TokenReader(payload xmlstream.TokenReader) xmlstream.TokenReader {
	inner := xmlstream.Wrap(s.innerXML, xml.StartElement{Name: xml.Name{Local: s.Err, Space: ns.Streams}})
	if payload != nil {
		inner = xmlstream.MultiReader(
			inner,
			payload,
		)
	}
	return xmlstream.Wrap(
		inner,
		xml.StartElement{
			Name: xml.Name{Local: "error", Space: ns.Stream},
		},
	)
}
