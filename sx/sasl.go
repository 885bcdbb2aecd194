// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"

	"git.sr.ht/~xmppd/xmppd/internal/ns"
)

var saslMechanismsName = xml.Name{Space: ns.SASL, Local: "mechanisms"}

// Credentials is the callback vector the SASL filter mediates through
// : GET_REALM/GET_PASS/CHECK_PASS/CHECK_AUTHZID. The
// router and C2S gateway each adapt their own user table or auth provider
// to this interface so that sx stays independent of either.
type Credentials interface {
	// Realm returns the realm to authenticate against for a stream whose
	// header 'to' is to (GET_REALM).
	Realm(to string) string
	// Password returns the plaintext password for user in realm, used by
	// mechanisms (DIGEST-MD5) that need it to compute a response
	// themselves rather than delegate the comparison (GET_PASS).
	Password(ctx context.Context, realm, user string) (string, error)
	// CheckAuthzid validates a requested authorization identity
	// (CHECK_AUTHZID).
	CheckAuthzid(ctx context.Context, realm, authzid string) bool
}

// SASLPlugin returns the server-role SASL filter
// §4.1.2, offering DIGEST-MD5 against creds. On success it records the
// authenticated username on the stream and resets; on failure it emits
// <failure/> with the given condition and returns an error.
func SASLPlugin(creds Credentials) Plugin {
	return Plugin{
		Name:          saslMechanismsName,
		InitiatorName: xml.Name{Space: ns.SASL, Local: "auth"},
		Necessary:     Secure,
		Prohibited:    Authn,
		Features: func(s *Stream, enc *xml.Encoder) (bool, error) {
			start := xml.StartElement{Name: saslMechanismsName}
			if err := enc.EncodeToken(start); err != nil {
				return false, err
			}
			mech := xml.StartElement{Name: xml.Name{Local: "mechanism"}}
			if err := enc.EncodeToken(mech); err != nil {
				return false, err
			}
			if err := enc.EncodeToken(xml.CharData("DIGEST-MD5")); err != nil {
				return false, err
			}
			if err := enc.EncodeToken(mech.End()); err != nil {
				return false, err
			}
			return true, enc.EncodeToken(start.End())
		},
		Negotiate: func(s *Stream, start xml.StartElement) (State, bool, error) {
			return negotiateSASL(s, start, creds)
		},
	}
}

func negotiateSASL(s *Stream, start xml.StartElement, creds Credentials) (State, bool, error) {
	ctx := context.Background()

	var mechanism string
	for _, a := range start.Attr {
		if a.Name.Local == "mechanism" {
			mechanism = a.Value
		}
	}
	// The initial <auth/> may carry an inline base64 initial response as
	// its character data; skip it since DIGEST-MD5 doesn't use one.
	if err := s.dec.Skip(); err != nil {
		return 0, false, err
	}
	if mechanism != "DIGEST-MD5" {
		return 0, false, saslFailure(s, "invalid-mechanism")
	}

	realm := creds.Realm(s.To)
	challenge, nonce, err := digestChallenge(realm)
	if err != nil {
		return 0, false, err
	}
	if err := sendSASLElement(s, "challenge", challenge); err != nil {
		return 0, false, err
	}

	resp, err := readSASLResponse(s)
	if err != nil {
		return 0, false, err
	}
	params := parseDigestResponse(resp)
	if params.nonce != nonce || params.qop != "auth" {
		return 0, false, saslFailure(s, "not-authorized")
	}
	password, err := creds.Password(ctx, realm, params.username)
	if err != nil {
		return 0, false, saslFailure(s, "not-authorized")
	}
	if digestResponse(params, password, parseNC(orDefault(params.nc, "1"))) != params.response {
		return 0, false, saslFailure(s, "not-authorized")
	}
	if params.authzid != "" && !creds.CheckAuthzid(ctx, realm, params.authzid) {
		return 0, false, saslFailure(s, "invalid-authzid")
	}

	// RFC 2831's optional rspauth round trip: one more empty challenge
	// the client must acknowledge with an empty response.
	if err := sendSASLElement(s, "challenge", fmt.Sprintf("rspauth=%s", params.response)); err != nil {
		return 0, false, err
	}
	if _, err := readSASLResponse(s); err != nil {
		return 0, false, err
	}

	if err := s.QueueRaw([]byte(`<success xmlns='`+ns.SASL+`'/>`), nil); err != nil {
		return 0, false, err
	}
	s.From = params.username + "@" + realm
	return Authn, true, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sendSASLElement(s *Stream, local, payload string) error {
	enc := base64.StdEncoding.EncodeToString([]byte(payload))
	return s.QueueRaw([]byte(fmt.Sprintf(`<%s xmlns='%s'>%s</%s>`, local, ns.SASL, enc, local)), nil)
}

func readSASLResponse(s *Stream) (string, error) {
	var resp struct {
		Data string `xml:",chardata"`
	}
	if err := s.dec.Decode(&resp); err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ClientSASLPlugin returns the initiating-role counterpart to SASLPlugin:
// it selects DIGEST-MD5 from the peer's offered <mechanisms/>, answers
// its challenge as user/password, and acknowledges the rspauth round
// trip. The router's component protocol is the first consumer, where SASLPlugin's
// always-server negotiateSASL can't run on the dialing side.
func ClientSASLPlugin(user, password string) Plugin {
	return Plugin{
		Name:       saslMechanismsName,
		Prohibited: Authn,
		Negotiate: func(s *Stream, start xml.StartElement) (State, bool, error) {
			return negotiateClientSASL(s, start, user, password)
		},
	}
}

func negotiateClientSASL(s *Stream, start xml.StartElement, user, password string) (State, bool, error) {
	var mechs struct {
		Mechanism []string `xml:"mechanism"`
	}
	if err := s.dec.DecodeElement(&mechs, &start); err != nil {
		return 0, false, err
	}
	found := false
	for _, m := range mechs.Mechanism {
		if m == "DIGEST-MD5" {
			found = true
		}
	}
	if !found {
		return 0, false, fmt.Errorf("sx: peer did not offer DIGEST-MD5")
	}

	enc := base64.StdEncoding.EncodeToString(nil)
	if err := s.QueueRaw([]byte(fmt.Sprintf(
		`<auth xmlns='%s' mechanism='DIGEST-MD5'>%s</auth>`, ns.SASL, enc,
	)), nil); err != nil {
		return 0, false, err
	}

	challenge, err := readSASLResponse(s)
	if err != nil {
		return 0, false, err
	}
	server := parseDigestResponse(challenge)

	cnonce, err := randomNonce()
	if err != nil {
		return 0, false, err
	}
	digestURI := "xmpp/" + server.realm
	params := digestParams{
		username:  user,
		realm:     server.realm,
		nonce:     server.nonce,
		cnonce:    cnonce,
		nc:        "00000001",
		qop:       "auth",
		digestURI: digestURI,
	}
	response := digestResponse(params, password, 1)
	payload := fmt.Sprintf(
		`username="%s",realm="%s",nonce="%s",cnonce="%s",nc=%s,qop=%s,digest-uri="%s",response=%s,charset=utf-8`,
		user, server.realm, server.nonce, cnonce, params.nc, params.qop, digestURI, response,
	)
	if err := sendSASLElement(s, "response", payload); err != nil {
		return 0, false, err
	}

	// rspauth round trip: the server sends one more challenge we need
	// only acknowledge with an empty response.
	if _, err := readSASLResponse(s); err != nil {
		return 0, false, err
	}
	if err := sendSASLElement(s, "response", ""); err != nil {
		return 0, false, err
	}

	tok, err := s.dec.Token()
	if err != nil {
		return 0, false, err
	}
	success, ok := tok.(xml.StartElement)
	if !ok || success.Name.Local != "success" {
		return 0, false, fmt.Errorf("sx: sasl authentication failed")
	}
	if err := s.dec.Skip(); err != nil {
		return 0, false, err
	}
	s.From = user + "@" + server.realm
	return Authn, true, nil
}

func randomNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func saslFailure(s *Stream, condition string) error {
	_ = s.QueueRaw([]byte(fmt.Sprintf(
		`<failure xmlns='%s'><%s/></failure>`, ns.SASL, condition,
	)), nil)
	return fmt.Errorf("sx: sasl failure: %s", condition)
}
