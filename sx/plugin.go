// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import (
	"encoding/xml"

	"git.sr.ht/~xmppd/xmppd/nad"
)

// Result is returned by a Plugin's Process hook to tell the Stream how to
// continue: Handled stops the plugin chain for that element (the plugin
// consumed it), Pass lets the next plugin or the application see it.
type Result int

const (
	// Pass lets the element continue down the chain.
	Pass Result = iota
	// Handled stops the chain; the plugin consumed the element.
	Handled
)

// Plugin generalizes a StreamFeature{Name, Necessary, Prohibited, List,
// Parse, Negotiate} shape into a chain member with additional Process,
// RIO and WIO hook slots; Stream itself invokes only Features, Negotiate
// and Free.
type Plugin struct {
	// Name is the feature element's XML name, used to recognize a
	// matching child of <stream:features/>.
	Name xml.Name

	// InitiatorName is the element name the peer sends to select this
	// feature when we are in the Received role, if it differs from Name
	// (e.g. SASL advertises <mechanisms/> but the peer replies with
	// <auth/>). Defaults to Name when zero.
	InitiatorName xml.Name

	// Necessary and Prohibited gate when this plugin offers or accepts a
	// feature, the same way StreamFeature.Necessary/Prohibited do.
	Necessary, Prohibited State

	// Features writes this plugin's <stream:features/> child, if any,
	// reporting whether it is required.
	Features func(s *Stream, enc *xml.Encoder) (required bool, err error)

	// Negotiate takes over the stream to negotiate this plugin's feature
	// once its start element has been seen in the peer's feature list (or,
	// in the Received role, once the peer has requested it). It returns
	// the state bits to OR into the stream's state, and whether the
	// stream must be reset (parser reinitialized, state back to None).
	Negotiate func(s *Stream, start xml.StartElement) (mask State, reset bool, err error)

	// Process is a per-stanza hook slot. Stream.Run does not call it: every
	// top-level stanza goes straight to App, and no plugin sets it.
	Process func(s *Stream, n *nad.NAD) (Result, error)

	// RIO is a read-side byte filter slot. Stream does not call it: the
	// parser reads from Conn directly.
	RIO func(s *Stream, p []byte) ([]byte, error)

	// WIO is a write-side byte filter slot. Stream does not call it:
	// writes go to Conn directly.
	WIO func(s *Stream, p []byte) ([]byte, error)

	// Free releases any plugin-owned resources when the stream closes.
	Free func(s *Stream)
}

func (p Plugin) offered(state State) bool {
	return state.Has(p.Necessary) && state&p.Prohibited == 0
}

// initiatorName returns InitiatorName, falling back to Name.
func (p Plugin) initiatorName() xml.Name {
	if p.InitiatorName != (xml.Name{}) {
		return p.InitiatorName
	}
	return p.Name
}
