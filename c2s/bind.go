// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"context"

	"git.sr.ht/~xmppd/xmppd/internal/genid"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// ConflictPolicy controls what happens when a client requests a resource
// that is already bound under its own bare JID, grounded on
// hunter007-jackal/c2s/in.go's bindResource three-way switch.
type ConflictPolicy int

const (
	// Disallow rejects the bind request with a conflict error, leaving
	// the existing session untouched. This is the default
	// only promises a substitute resource "under conflict policy", it
	// does not mandate that the default policy tear down a live session.
	Disallow ConflictPolicy = iota

	// Override assigns the requester a fresh, server-generated resource
	// instead of the one it asked for, leaving the existing session
	// alone.
	Override

	// Replace closes the existing session and binds the new one to the
	// requested resource.
	Replace
)

// newBindHandler builds an sx.BindHandler that resolves a requested
// resource against sessions, calling provider.UserExists the way
// §4.3 requires ("calls the auth provider's user_exists") before
// assigning anything, and applying policy on a conflict.
func newBindHandler(realm string, provider Provider, sessions *Table, policy ConflictPolicy, onBound func(user, resource string, s *sx.Stream)) sx.BindHandler {
	return func(ctx context.Context, s *sx.Stream, requested string) (string, *sx.BindError) {
		user := s.From
		ok, err := provider.UserExists(ctx, localpart(user), realm)
		if err != nil || !ok {
			return "", &sx.BindError{Condition: "not-authorized"}
		}

		resource := requested
		if resource == "" {
			resource = genid.Stream()
		}

		if sessions.HasResource(user, resource) {
			switch policy {
			case Override:
				resource = genid.Stream()
			case Replace:
				if existing, ok := sessions.Lookup(user, resource); ok {
					_ = existing.Stream.Close()
					sessions.Unbind(user, resource)
				}
			default: // Disallow
				return "", &sx.BindError{Condition: "conflict"}
			}
		}

		onBound(user, resource, s)
		return resource, nil
	}
}

// localpart returns the portion of a bare JID before '@', or the whole
// string if there is none (used only for provider lookups, which want a
// bare username rather than a full address).
func localpart(bareJID string) string {
	for i := 0; i < len(bareJID); i++ {
		if bareJID[i] == '@' {
			return bareJID[:i]
		}
	}
	return bareJID
}
