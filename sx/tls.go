// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import (
	"crypto/tls"
	"encoding/xml"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
)

// startTLSName is the <starttls/> element offered in features.
var startTLSName = xml.Name{Space: ns.StartTLS, Local: "starttls"}

// TLSPlugin returns the STARTTLS filter: it
// offers <starttls/> among features (unless already encrypted or no
// config was supplied), and on request performs the handshake in place,
// swapping Stream.Conn for the negotiated *tls.Conn and resetting the
// stream. require, if true, makes it an error for stanzas to flow before
// TLS is negotiated (STARTTLS_REQUIRE).
func TLSPlugin(cfg *tls.Config, require bool) Plugin {
	return Plugin{
		Name:       startTLSName,
		Prohibited: Secure,
		Features: func(s *Stream, enc *xml.Encoder) (bool, error) {
			if cfg == nil {
				return false, nil
			}
			start := xml.StartElement{Name: startTLSName}
			if err := enc.EncodeToken(start); err != nil {
				return false, err
			}
			if require {
				reqStart := xml.StartElement{Name: xml.Name{Local: "required"}}
				if err := enc.EncodeToken(reqStart); err != nil {
					return false, err
				}
				if err := enc.EncodeToken(reqStart.End()); err != nil {
					return false, err
				}
			}
			return enc.EncodeToken(start.End()) == nil, nil
		},
		Negotiate: func(s *Stream, start xml.StartElement) (State, bool, error) {
			if cfg == nil {
				return 0, false, errNoTLSConfig
			}
			if err := s.dec.Skip(); err != nil {
				return 0, false, err
			}

			var tc *tls.Conn
			if s.state.Has(Received) {
				// The peer asked us to start TLS: announce <proceed/> and
				// take the server role in the handshake.
				if err := s.QueueRaw([]byte(`<proceed xmlns='`+ns.StartTLS+`'/>`), nil); err != nil {
					return 0, false, err
				}
				tc = tls.Server(s.Conn, cfg)
			} else {
				// We're initiating: request <starttls/> and wait for
				// <proceed/> before taking the client role.
				if err := s.QueueRaw([]byte(`<starttls xmlns='`+ns.StartTLS+`'/>`), nil); err != nil {
					return 0, false, err
				}
				tok, err := s.dec.Token()
				if err != nil {
					return 0, false, err
				}
				ps, ok := tok.(xml.StartElement)
				if !ok || ps.Name.Local != "proceed" {
					return 0, false, errNoTLSConfig
				}
				if err := s.dec.Skip(); err != nil {
					return 0, false, err
				}
				tc = tls.Client(s.Conn, cfg)
			}
			if err := tc.Handshake(); err != nil {
				return 0, false, err
			}
			s.Conn = tc
			return Secure, true, nil
		},
	}
}

var errNoTLSConfig = &tlsConfigError{}

type tlsConfigError struct{}

func (*tlsConfigError) Error() string { return "sx: starttls requested but no tls.Config configured" }
