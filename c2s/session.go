// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"sync"
	"time"

	"git.sr.ht/~xmppd/xmppd/sx"
)

// Session is one bound client connection: a single resource under a
// single bare JID.
type Session struct {
	User, Resource string
	Stream         *sx.Stream

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch records activity on the session, consulted by the idle/keepalive
// reaper.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the time Touch was last called.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Table tracks every bound session, keyed first by bare JID and then by
// resource. Each client connection here runs its own Stream.Run
// goroutine, so Bind/Unbind/Lookup are genuinely concurrent and Table
// carries a mutex, the same way router.Table and s2s.Table do for their
// own goroutine-per-connection state.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // bare JID -> resource -> session
}

// NewTable returns an empty session Table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]map[string]*Session)}
}

// Bind registers a new session for user/resource, replacing any existing
// session under the same bare JID and resource (the caller is expected to
// have already applied whatever conflict policy it wants before calling
// Bind; see newBindHandler).
func (t *Table) Bind(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byRes, ok := t.sessions[s.User]
	if !ok {
		byRes = make(map[string]*Session)
		t.sessions[s.User] = byRes
	}
	byRes[s.Resource] = s
}

// Unbind removes a single user/resource session.
func (t *Table) Unbind(user, resource string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byRes, ok := t.sessions[user]
	if !ok {
		return
	}
	delete(byRes, resource)
	if len(byRes) == 0 {
		delete(t.sessions, user)
	}
}

// UnbindStream removes every session bound to s, used when a client
// connection closes.
func (t *Table) UnbindStream(s *sx.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for user, byRes := range t.sessions {
		for resource, sess := range byRes {
			if sess.Stream == s {
				delete(byRes, resource)
			}
		}
		if len(byRes) == 0 {
			delete(t.sessions, user)
		}
	}
}

// Lookup finds the session bound for user/resource.
func (t *Table) Lookup(user, resource string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byRes, ok := t.sessions[user]
	if !ok {
		return nil, false
	}
	sess, ok := byRes[resource]
	return sess, ok
}

// Resources returns every session currently bound under user's bare JID,
// used to fan a bare-JID-addressed stanza out to every resource.
func (t *Table) Resources(user string) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byRes, ok := t.sessions[user]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(byRes))
	for _, s := range byRes {
		out = append(out, s)
	}
	return out
}

// HasResource reports whether resource is already bound under user,
// consulted by the default (disallow) conflict policy.
func (t *Table) HasResource(user, resource string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[user][resource]
	return ok
}

// All returns every currently bound session, used by the idle/keepalive
// reaper sweep.
func (t *Table) All() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0)
	for _, byRes := range t.sessions {
		for _, s := range byRes {
			out = append(out, s)
		}
	}
	return out
}
