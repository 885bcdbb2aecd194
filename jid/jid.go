// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// JID is an immutable XMPP address: a (localpart, domainpart, resourcepart)
// triple, each part already run through nodeprep/nameprep/resourceprep.
// The zero value is not a valid JID; construct one with New or MustParse.
type JID struct {
	localpart    string
	domainpart   string
	resourcepart string
}

// New parses and prepares s into a JID.
func New(s string) (*JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return nil, err
	}
	return FromParts(localpart, domainpart, resourcepart)
}

// MustParse is like New but panics on error. Intended for tests and
// static configuration values known to be valid at compile time.
func MustParse(s string) *JID {
	j, err := New(s)
	if err != nil {
		panic(err)
	}
	return j
}

// FromParts prepares and validates the given localpart, domainpart, and
// resourcepart and returns the resulting JID.
func FromParts(localpart, domainpart, resourcepart string) (*JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return nil, errors.New("jid: part contains invalid UTF-8")
	}

	domainpart, err := idna.ToUnicode(domainpart)
	if err != nil {
		return nil, fmt.Errorf("jid: nameprep domainpart: %w", err)
	}
	if !utf8.ValidString(domainpart) {
		return nil, errors.New("jid: domainpart contains invalid UTF-8")
	}
	domainpart = strings.ToLower(domainpart)

	if localpart != "" {
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return nil, fmt.Errorf("jid: nodeprep localpart: %w", err)
		}
	}
	if resourcepart != "" {
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return nil, fmt.Errorf("jid: resourceprep resourcepart: %w", err)
		}
	}

	if err := commonChecks(localpart, domainpart, resourcepart); err != nil {
		return nil, err
	}

	return &JID{
		localpart:    localpart,
		domainpart:   domainpart,
		resourcepart: resourcepart,
	}, nil
}

// Localpart returns the localpart of the JID (e.g. "juliet").
func (j *JID) Localpart() string { return j.localpart }

// Domainpart returns the domainpart of the JID (e.g. "example.com").
func (j *JID) Domainpart() string { return j.domainpart }

// Resourcepart returns the resourcepart of the JID (e.g. "balcony").
func (j *JID) Resourcepart() string { return j.resourcepart }

// Bare returns a copy of the JID with the resourcepart stripped.
func (j *JID) Bare() *JID {
	return &JID{localpart: j.localpart, domainpart: j.domainpart}
}

// WithResource returns a copy of j with the resourcepart replaced, without
// re-running domainpart/localpart preparation.
func (j *JID) WithResource(resourcepart string) (*JID, error) {
	resourcepart, err := precis.OpaqueString.String(resourcepart)
	if err != nil {
		return nil, fmt.Errorf("jid: resourceprep resourcepart: %w", err)
	}
	if err := commonChecks(j.localpart, j.domainpart, resourcepart); err != nil {
		return nil, err
	}
	return &JID{localpart: j.localpart, domainpart: j.domainpart, resourcepart: resourcepart}, nil
}

// String returns the canonical string form of the JID.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	s := j.domainpart
	if j.localpart != "" {
		s = j.localpart + "@" + s
	}
	if j.resourcepart != "" {
		s = s + "/" + j.resourcepart
	}
	return s
}

// Equal reports whether j and j2 are the same JID once canonicalized. JIDs
// are compared by canonical form, so this is a plain part-by-part
// comparison of already-prepared values.
func (j *JID) Equal(j2 *JID) bool {
	if j == nil || j2 == nil {
		return j == j2
	}
	return j.localpart == j2.localpart &&
		j.domainpart == j2.domainpart &&
		j.resourcepart == j2.resourcepart
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := New(attr.Value)
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}

// SplitString splits a JID's string representation into its unprepared
// localpart, domainpart, and resourcepart. Parts returned are not
// guaranteed to be valid; call FromParts (or New, which does this for you)
// to validate and prepare them.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1: match '@' and '/' before any transformation algorithm
	// that might decompose Unicode code points into those separators.
	parts := strings.SplitAfterN(s, "/", 2)

	if strings.HasSuffix(parts[0], "/") {
		if len(parts) == 2 && parts[1] != "" {
			resourcepart = parts[1]
		} else {
			err = errors.New("jid: resourcepart must be larger than 0 bytes")
			return
		}
	}

	norp := strings.TrimSuffix(parts[0], "/")
	nolp := strings.SplitAfterN(norp, "@", 2)

	if nolp[0] == "@" {
		err = errors.New("jid: localpart must be larger than 0 bytes")
		return
	}

	switch len(nolp) {
	case 1:
		domainpart = nolp[0]
	case 2:
		domainpart = nolp[1]
		localpart = strings.TrimSuffix(nolp[0], "@")
	}

	// RFC 7622 §3.2: a trailing label separator (dot) is stripped before
	// any other canonicalization step.
	domainpart = strings.TrimSuffix(domainpart, ".")

	return
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 address")
		}
	}
	return nil
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if l := len(localpart); l > 1023 {
		return errors.New("jid: localpart must be smaller than 1024 bytes")
	}
	// RFC 7622 §3.3.1: forbidden even though precis doesn't reject them.
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return errors.New("jid: localpart contains forbidden characters")
	}
	if l := len(resourcepart); l > 1023 {
		return errors.New("jid: resourcepart must be smaller than 1024 bytes")
	}
	if l := len(domainpart); l < 1 || l > 1023 {
		return errors.New("jid: domainpart must be between 1 and 1023 bytes")
	}
	return checkIP6String(domainpart)
}
