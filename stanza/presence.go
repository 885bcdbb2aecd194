// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"git.sr.ht/~xmppd/xmppd/jid"
)

// Presence is a stanza that advertises an entity's availability for
// communication: status, capabilities, and subscription state, sent
// either directed at one JID or broadcast to a roster.
type Presence struct {
	XMLName xml.Name     `xml:"presence"`
	ID      string       `xml:"id,attr"`
	To      *jid.JID     `xml:"to,attr"`
	From    *jid.JID     `xml:"from,attr"`
	Lang    string       `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    PresenceType `xml:"type,attr,omitempty"`
}

// PresenceType is the type attribute of a presence stanza; the zero value
// is the implicit "available" presence, which carries no type attribute
// at all.
type PresenceType string

const (
	// ErrorPresence reports that processing a previously sent presence
	// stanza failed; the stanza MUST then carry an <error/> child.
	ErrorPresence PresenceType = "error"

	// ProbePresence asks for an entity's current presence, normally sent
	// by a server on a subscriber's behalf rather than by a client.
	ProbePresence PresenceType = "probe"

	// SubscribePresence requests a subscription to the recipient's
	// presence.
	SubscribePresence PresenceType = "subscribe"

	// SubscribedPresence grants a previously requested subscription.
	SubscribedPresence PresenceType = "subscribed"

	// UnavailablePresence announces that the sender is no longer
	// available for communication.
	UnavailablePresence PresenceType = "unavailable"

	// UnsubscribePresence cancels the sender's own subscription to the
	// recipient's presence.
	UnsubscribePresence PresenceType = "unsubscribe"

	// UnsubscribedPresence revokes or denies a subscription.
	UnsubscribedPresence PresenceType = "unsubscribed"
)
