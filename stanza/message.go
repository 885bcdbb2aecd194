// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"fmt"

	"git.sr.ht/~xmppd/xmppd/internal/attr"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
)

// Message is an XMPP stanza that is used for push communication, commonly
// (but not only) used to send chat messages between entities.
type Message struct {
	XMLName xml.Name    `xml:"message"`
	ID      string      `xml:"id,attr"`
	To      *jid.JID    `xml:"to,attr"`
	From    *jid.JID    `xml:"from,attr"`
	Lang    string      `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    MessageType `xml:"type,attr,omitempty"`
}

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a standalone message sent outside the context of a
	// one-to-one conversation or groupchat, and the recipient should
	// display it to the user in a manner that clearly differentiates it
	// from a standard conversational message.
	NormalMessage MessageType = "normal"

	// ChatMessage is sent in the context of a one-to-one chat session.
	ChatMessage MessageType = "chat"

	// HeadlineMessage is sent in the context of a "headline" newsfeed,
	// typically transient in nature.
	HeadlineMessage MessageType = "headline"

	// ErrorMessage indicates that an error occurred while processing or
	// delivering a previously sent message; it MUST include an <error/>
	// child element.
	ErrorMessage MessageType = "error"
)

// StartElement returns an XML encoded start element that can be used to
// recreate the message, normally by passing it to
// xmlstream.Wrap or similar.
func (m Message) StartElement() xml.StartElement {
	attrs := []xml.Attr{}
	if m.ID != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: m.ID})
	}
	if m.To != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: m.To.String()})
	}
	if m.From != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: m.From.String()})
	}
	if m.Lang != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: m.Lang})
	}
	if m.Type != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(m.Type)})
	}
	return xml.StartElement{
		Name: xml.Name{Space: m.XMLName.Space, Local: "message"},
		Attr: attrs,
	}
}

// NewMessage builds a Message by reading the id, to, from, xml:lang, and
// type attributes off of start. It returns an error if start is not a
// <message/> start element.
func NewMessage(start xml.StartElement) (Message, error) {
	var m Message
	if start.Name.Local != "message" {
		return m, fmt.Errorf("stanza: expected a <message/> start element, got <%s/>", start.Name.Local)
	}
	m.XMLName = start.Name
	if _, v := attr.Get(start.Attr, "id"); v != "" {
		m.ID = v
	}
	if _, v := attr.Get(start.Attr, "to"); v != "" {
		to, err := jid.New(v)
		if err != nil {
			return m, err
		}
		m.To = to
	}
	if _, v := attr.Get(start.Attr, "from"); v != "" {
		from, err := jid.New(v)
		if err != nil {
			return m, err
		}
		m.From = from
	}
	for _, a := range start.Attr {
		if a.Name.Space == ns.XML && a.Name.Local == "lang" {
			m.Lang = a.Value
		}
	}
	if _, v := attr.Get(start.Attr, "type"); v != "" {
		m.Type = MessageType(v)
	}
	return m, nil
}
