// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"sync"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
	"git.sr.ht/~xmppd/xmppd/internal/ratelimit"
	"git.sr.ht/~xmppd/xmppd/sx"
)

// Component is a single name bound to a stream: either a C2S/S2S gateway,
// or an arbitrary external component.
// One Stream may have more than one Component if it sent more than one
// <bind/>.
type Component struct {
	Name    string
	Stream  *sx.Stream
	Limiter *ratelimit.Bucket

	// Default marks the component that receives stanzas for domains with
	// no explicit route (normally the S2S gateway).
	Default bool
}

// Table is the router's route table: a primary name→component map, a
// static alias map applied to destination domains before lookup, and a
// set of components registered as message-log observers. Every accepted
// component runs its own Stream.Run goroutine (see Router.acceptComponent),
// so Bind/Unbind/Lookup and friends are genuinely concurrent and Table
// carries a mutex, the same way c2s.Table and s2s.Table do for their own
// goroutine-per-connection tables.
type Table struct {
	mu          sync.RWMutex
	routes      map[string]*Component
	aliases     map[string]string
	logSinks    map[string]*Component
	bindACL     *accesslist.List
	routeACL    *accesslist.List
	defaultName string
}

// NewTable returns an empty Table gated by bindACL and routeACL (either may
// be nil to allow everything).
func NewTable(bindACL, routeACL *accesslist.List) *Table {
	return &Table{
		routes:   make(map[string]*Component),
		aliases:  make(map[string]string),
		logSinks: make(map[string]*Component),
		bindACL:  bindACL,
		routeACL: routeACL,
	}
}

// SetDefaultName marks the component name that, once bound, receives
// stanzas for domains with no explicit route.
func (t *Table) SetDefaultName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultName = name
}

// DefaultName returns the component name last set by SetDefaultName.
func (t *Table) DefaultName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultName
}

// Alias installs a static destination-domain substitution.
func (t *Table) Alias(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aliases[from] = to
}

// Bind registers c under name after checking it against the bind ACL,
// validating the name against ACLs (the bind ACL).
func (t *Table) Bind(name string, c *Component) error {
	if t.bindACL != nil && !t.bindACL.Permit(name) {
		return errBindNotAllowed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = c
	return nil
}

// Unbind removes a single bound name.
func (t *Table) Unbind(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, name)
}

// UnbindStream removes every name currently bound to s, used when a
// component's stream closes.
func (t *Table) UnbindStream(s *sx.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, c := range t.routes {
		if c.Stream == s {
			delete(t.routes, name)
		}
	}
	for name, c := range t.logSinks {
		if c.Stream == s {
			delete(t.logSinks, name)
		}
	}
}

// resolveAlias applies the alias map, returning domain unchanged if no
// alias is registered for it. Callers must hold t.mu.
func (t *Table) resolveAlias(domain string) string {
	if to, ok := t.aliases[domain]; ok {
		return to
	}
	return domain
}

// ResolveAlias applies the alias map, returning domain unchanged if no
// alias is registered for it.
func (t *Table) ResolveAlias(domain string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveAlias(domain)
}

// Lookup finds the component bound for domain, after alias resolution.
func (t *Table) Lookup(domain string) (*Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.routes[t.resolveAlias(domain)]
	return c, ok
}

// PermitRoute reports whether a component named from is allowed to send
// stanzas through the router.
func (t *Table) PermitRoute(from string) bool {
	if t.routeACL == nil {
		return true
	}
	return t.routeACL.Permit(from)
}

// DefaultRoute returns the component marked Default (normally the S2S
// gateway), if any.
func (t *Table) DefaultRoute() (*Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.routes {
		if c.Default {
			return c, true
		}
	}
	return nil, false
}

// Components returns a snapshot of every currently bound component, used
// by Shutdown to close each one without holding t.mu across the close.
func (t *Table) Components() []*Component {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Component, 0, len(t.routes))
	for _, c := range t.routes {
		out = append(out, c)
	}
	return out
}

// Clear removes every bound route, used by Shutdown once every
// component's stream has been closed.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = make(map[string]*Component)
}

// RegisterLogSink adds c to the set of components that receive a copy of
// every logged message.
func (t *Table) RegisterLogSink(name string, c *Component) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logSinks[name] = c
}

// LogSinks returns every registered log-sink component.
func (t *Table) LogSinks() []*Component {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Component, 0, len(t.logSinks))
	for _, c := range t.logSinks {
		out = append(out, c)
	}
	return out
}

type bindError string

func (e bindError) Error() string { return string(e) }

const errBindNotAllowed = bindError("router: bind name not permitted by ACL")
