// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"context"
	"encoding/xml"
	"fmt"

	"git.sr.ht/~xmppd/xmppd/internal/attr"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// newRegisterPlugin returns the in-band-registration filter
// §4.3 ("Registration": pre-auth via set_password/create_user), built
// the same way sx/bind.go's BindPlugin wraps a full <iq/> rather than the
// bare feature element, since a registration request also arrives
// wrapped in a stanza. It is only ever offered pre-auth (Prohibited:
// Authn), so it coexists with BindPlugin sharing the same InitiatorName
// without ambiguity: the two are never offered at the same time.
func newRegisterPlugin(realm string, provider Provider) sx.Plugin {
	registerFeature := xml.Name{Space: ns.RegisterFeature, Local: "register"}
	return sx.Plugin{
		Name:          registerFeature,
		InitiatorName: xml.Name{Space: ns.Client, Local: "iq"},
		Prohibited:    sx.Authn,
		Features: func(s *sx.Stream, enc *xml.Encoder) (bool, error) {
			start := xml.StartElement{Name: registerFeature}
			if err := enc.EncodeToken(start); err != nil {
				return false, err
			}
			return false, enc.EncodeToken(start.End())
		},
		Negotiate: func(s *sx.Stream, start xml.StartElement) (sx.State, bool, error) {
			return negotiateRegister(s, start, realm, provider)
		},
	}
}

func negotiateRegister(s *sx.Stream, start xml.StartElement, realm string, provider Provider) (sx.State, bool, error) {
	_, id := attr.Get(start.Attr, "id")
	_, typ := attr.Get(start.Attr, "type")

	n, err := s.ParseElement(start)
	if err != nil {
		return 0, false, err
	}
	defer n.Free()

	root := n.Root()
	query := firstChildNamed(n, root, "query")
	if query == nad.None || n.ElementNamespace(query) != ns.Register {
		return 0, false, sendRegisterError(s, id, "bad-request")
	}

	switch typ {
	case "get":
		return 0, false, sendRegisterForm(s, id)
	case "set":
		return negotiateRegisterSet(s, n, query, id, realm, provider)
	default:
		return 0, false, sendRegisterError(s, id, "bad-request")
	}
}

func negotiateRegisterSet(s *sx.Stream, n *nad.NAD, query int, id, realm string, provider Provider) (sx.State, bool, error) {
	user := childCData(n, query, "username")
	password := childCData(n, query, "password")
	if user == "" || password == "" {
		return 0, false, sendRegisterError(s, id, "not-acceptable")
	}

	ctx := context.Background()
	exists, err := provider.UserExists(ctx, user, realm)
	if err != nil {
		return 0, false, sendRegisterError(s, id, "internal-server-error")
	}
	if exists {
		return 0, false, sendRegisterError(s, id, "conflict")
	}
	if err := provider.CreateUser(ctx, user, realm, password); err != nil {
		return 0, false, sendRegisterError(s, id, "internal-server-error")
	}

	reply := fmt.Sprintf(`<iq id='%s' type='result'/>`, xmlAttrEscape(id))
	if err := s.QueueRaw([]byte(reply), nil); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

func sendRegisterForm(s *sx.Stream, id string) error {
	reply := fmt.Sprintf(
		`<iq id='%s' type='result'><query xmlns='%s'><instructions>Choose a username and password to register.</instructions><username/><password/></query></iq>`,
		xmlAttrEscape(id), ns.Register,
	)
	return s.QueueRaw([]byte(reply), nil)
}

func sendRegisterError(s *sx.Stream, id, condition string) error {
	reply := fmt.Sprintf(
		`<iq id='%s' type='error'><error type='modify'><%s xmlns='%s'/></error></iq>`,
		xmlAttrEscape(id), condition, ns.Stanza,
	)
	return s.QueueRaw([]byte(reply), nil)
}

func firstChildNamed(n *nad.NAD, parent int, name string) int {
	for c := n.FirstChild(parent); c != nad.None; c = n.NextSibling(c) {
		if n.ElementName(c) == name {
			return c
		}
	}
	return nad.None
}

func childCData(n *nad.NAD, parent int, name string) string {
	c := firstChildNamed(n, parent, name)
	if c == nad.None {
		return ""
	}
	return n.ElementCData(c)
}
