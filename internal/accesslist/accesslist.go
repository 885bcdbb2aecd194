// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package accesslist implements the router's order/allow/deny access
// control and the S2S gateway's domain whitelist, both specified in terms
// of dot-segment-aligned suffix matching.
package accesslist // import "git.sr.ht/~xmppd/xmppd/internal/accesslist"

import "strings"

// Order controls whether an undecided address is allowed or denied by
// default.
type Order int

const (
	// AllowDeny allows everything not explicitly denied.
	AllowDeny Order = iota
	// DenyAllow denies everything not explicitly allowed.
	DenyAllow
)

// List is an ordered access-control list of domain (or address) patterns.
// Each pattern matches by exact equality or by dot-segment-aligned
// suffix: "a.b.example" matches the pattern "example", but "ample" does
// not match "example".
type List struct {
	order Order
	allow []string
	deny  []string
}

// New returns an empty List with the given default order.
func New(order Order) *List {
	return &List{order: order}
}

// Allow adds pattern to the allow list.
func (l *List) Allow(pattern string) { l.allow = append(l.allow, pattern) }

// Deny adds pattern to the deny list.
func (l *List) Deny(pattern string) { l.deny = append(l.deny, pattern) }

// Permit reports whether name is allowed by the list.
//
// AllowDeny: permitted unless name matches a deny entry, even if it also
// matches an allow entry (deny wins).
// DenyAllow: denied unless name matches an allow entry (allow wins).
func (l *List) Permit(name string) bool {
	switch l.order {
	case DenyAllow:
		// Default deny: only an explicit allow entry grants access.
		return matchesAny(name, l.allow)
	default: // AllowDeny
		// Default allow: an explicit deny entry revokes access.
		return !matchesAny(name, l.deny)
	}
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(name, p) {
			return true
		}
	}
	return false
}

// Matches reports whether name equals pattern or ends in pattern aligned
// on a dot boundary, e.g. "a.b.example" matches "example" and
// "b.example", but "xample" and "notexample" do not.
func Matches(name, pattern string) bool {
	if name == pattern {
		return true
	}
	if !strings.HasSuffix(name, pattern) {
		return false
	}
	// The byte immediately before the matched suffix must be a dot, or
	// the suffix must be the whole string (handled above).
	cut := len(name) - len(pattern)
	return cut > 0 && name[cut-1] == '.'
}
