// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import (
	"context"
	"encoding/xml"
	"fmt"

	"git.sr.ht/~xmppd/xmppd/internal/attr"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
)

var (
	bindName = xml.Name{Space: ns.Bind, Local: "bind"}
	iqName   = xml.Name{Space: ns.Client, Local: "iq"}
)

// BindError reports why a resource bind request was refused; Condition is
// the stanza-error condition to send back.
type BindError struct {
	Condition string
}

func (e *BindError) Error() string { return "sx: bind failed: " + e.Condition }

// BindHandler assigns a resource for a just-authenticated stream, applying
// whatever conflict policy the caller wants against requested (which may be
// empty, meaning the client left resource assignment to the server).
type BindHandler func(ctx context.Context, s *Stream, requested string) (resource string, err *BindError)

// BindPlugin returns the resource-bind filter:
// it offers <bind/> once a stream is Authn, and on the client's bind IQ
// calls handler to assign a resource, replying with the bound full JID.
// Unlike a client-only implementation, the Received-role branch here is
// fully implemented rather than an unimplemented stub, since this stream
// must serve the server role.
func BindPlugin(handler BindHandler) Plugin {
	return Plugin{
		Name:          bindName,
		InitiatorName: iqName,
		Necessary:     Authn,
		Prohibited:    Bound,
		Features: func(s *Stream, enc *xml.Encoder) (bool, error) {
			start := xml.StartElement{Name: bindName}
			if err := enc.EncodeToken(start); err != nil {
				return false, err
			}
			req := xml.StartElement{Name: xml.Name{Local: "required"}}
			if err := enc.EncodeToken(req); err != nil {
				return false, err
			}
			if err := enc.EncodeToken(req.End()); err != nil {
				return false, err
			}
			return true, enc.EncodeToken(start.End())
		},
		Negotiate: func(s *Stream, start xml.StartElement) (State, bool, error) {
			return negotiateBind(s, start, handler)
		},
	}
}

// negotiateBind never fails the stream over a rejected bind attempt: a
// conflict or malformed request gets an <iq type='error'/> reply and the
// stream keeps negotiating (the client may retry with another resource),
// matching how a real XMPP client/server bind exchange behaves.
func negotiateBind(s *Stream, start xml.StartElement, handler BindHandler) (State, bool, error) {
	_, id := attr.Get(start.Attr, "id")
	_, typ := attr.Get(start.Attr, "type")
	if typ != "set" {
		if err := s.dec.Skip(); err != nil {
			return 0, false, err
		}
		return sendBindError(s, id, "bad-request")
	}

	n, err := s.ParseElement(start)
	if err != nil {
		return 0, false, err
	}
	defer n.Free()

	root := n.Root()
	bindElem := firstChildNamed(n, root, "bind")
	if bindElem == nad.None || n.ElementNamespace(bindElem) != ns.Bind {
		return sendBindError(s, id, "bad-request")
	}
	var requested string
	if resElem := firstChildNamed(n, bindElem, "resource"); resElem != nad.None {
		requested = n.ElementCData(resElem)
	}

	resource, berr := handler(context.Background(), s, requested)
	if berr != nil {
		return sendBindError(s, id, berr.Condition)
	}

	fullJID := s.From + "/" + resource
	reply := fmt.Sprintf(
		`<iq id='%s' type='result'><bind xmlns='%s'><jid>%s</jid></bind></iq>`,
		xmlEscape(id), ns.Bind, xmlEscape(fullJID),
	)
	if err := s.QueueRaw([]byte(reply), nil); err != nil {
		return 0, false, err
	}
	s.From = fullJID
	return Bound | Ready, false, nil
}

func sendBindError(s *Stream, id, condition string) (State, bool, error) {
	reply := fmt.Sprintf(
		`<iq id='%s' type='error'><error type='modify'><%s xmlns='%s'/></error></iq>`,
		xmlEscape(id), condition, ns.Stanza,
	)
	_ = s.QueueRaw([]byte(reply), nil)
	return 0, false, nil
}

func firstChildNamed(n *nad.NAD, parent int, name string) int {
	for c := n.FirstChild(parent); c != nad.None; c = n.NextSibling(c) {
		if n.ElementName(c) == name {
			return c
		}
	}
	return nad.None
}
