// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"fmt"

	"mellium.im/xmlstream"

	"git.sr.ht/~xmppd/xmppd/internal/attr"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/jid"
)

// IQ ("Information Query") is used as a general request response mechanism.
// IQ's are one-to-one, provide get and set semantics, and always require a
// response in the form of a result or an error.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	To      *jid.JID `xml:"to,attr"`
	From    *jid.JID `xml:"from,attr"`
	Lang    string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    IQType   `xml:"type,attr"`
}

// IQType is the type of an IQ stanza.
// It should normally be one of the constants defined in this package.
type IQType string

const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity, set new values, and
	// replace existing values.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface for IQType.
// An empty type defaults to "get", since every IQ must carry a type.
func (t IQType) MarshalXMLAttr(name xml.Name) (attr xml.Attr, err error) {
	s := string(t)
	if s == "" {
		s = string(GetIQ)
	}
	attr.Name = name
	attr.Value = s
	return attr, nil
}

// StartElement returns an XML encoded start element that can be used to
// recreate the IQ, normally by passing it to xmlstream.Wrap or similar.
func (iq IQ) StartElement() xml.StartElement {
	attrs := make([]xml.Attr, 0, 5)
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(iq.Type)})
	if iq.To != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: iq.To.String()})
	}
	if iq.From != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: iq.From.String()})
	}
	if iq.Lang != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: iq.Lang})
	}
	if iq.ID != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: iq.ID})
	}
	return xml.StartElement{
		Name: xml.Name{Space: iq.XMLName.Space, Local: "iq"},
		Attr: attrs,
	}
}

// Wrap wraps the payload in the IQ's start and end elements.
func (iq IQ) Wrap(payload xml.TokenReader) xml.TokenReader {
	return xmlstream.Wrap(payload, iq.StartElement())
}

// Result returns a new IQ of type "result" addressed to the original sender
// with To and From swapped, wrapping payload.
func (iq IQ) Result(payload xml.TokenReader) xml.TokenReader {
	result := IQ{
		XMLName: iq.XMLName,
		ID:      iq.ID,
		To:      iq.From,
		From:    iq.To,
		Type:    ResultIQ,
	}
	return result.Wrap(payload)
}

// NewIQ builds an IQ by reading the id, to, from, xml:lang, and type
// attributes off of start. Unlike NewMessage it does not validate that
// start is actually named "iq", matching the router's need to parse IQs
// embedded in a component route wrapper under a foreign element name.
func NewIQ(start xml.StartElement) (IQ, error) {
	var iq IQ
	iq.XMLName = start.Name
	if _, v := attr.Get(start.Attr, "id"); v != "" {
		iq.ID = v
	}
	if _, v := attr.Get(start.Attr, "to"); v != "" {
		to, err := jid.New(v)
		if err != nil {
			return iq, fmt.Errorf("stanza: bad to address: %w", err)
		}
		iq.To = to
	}
	if _, v := attr.Get(start.Attr, "from"); v != "" {
		from, err := jid.New(v)
		if err != nil {
			return iq, fmt.Errorf("stanza: bad from address: %w", err)
		}
		iq.From = from
	}
	for _, a := range start.Attr {
		if a.Name.Space == ns.XML && a.Name.Local == "lang" {
			iq.Lang = a.Value
		}
	}
	if _, v := attr.Get(start.Attr, "type"); v != "" {
		iq.Type = IQType(v)
	}
	return iq, nil
}
