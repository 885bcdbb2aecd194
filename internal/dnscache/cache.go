// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package dnscache holds resolved S2S peer addresses so the gateway
// doesn't re-resolve a remote domain's SRV record on every outbound
// stanza. Resolution itself is delegated to a Resolver so the cache
// stays usable against either the in-process github.com/miekg/dns-backed
// resolver or an external resolver component reached over a pipe
//.
package dnscache // import "git.sr.ht/~xmppd/xmppd/internal/dnscache"

import (
	"context"
	"time"
)

// Entry is one resolved (and possibly still-resolving) S2S destination.
type Entry struct {
	Name    string
	Addr    string
	Port    uint16
	Expiry  time.Time
	Pending bool
}

// Resolver resolves a remote XMPP domain to a dialable address, normally
// via an SRV lookup for _xmpp-server._tcp.<name> falling back to an A/AAAA
// lookup on <name> itself.
type Resolver interface {
	Resolve(ctx context.Context, name string) (addr string, port uint16, err error)
}

// Cache maps a domain name to its most recently resolved Entry. It is not
// safe for concurrent use; the S2S gateway holds its own mutex around
// every Lookup.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*Entry
}

// New returns a Cache that consults resolver on a miss or expiry and
// caches resolutions for ttl.
func New(resolver Resolver, ttl time.Duration) *Cache {
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*Entry),
	}
}

// Lookup returns the cached entry for name if it exists and has not
// expired, resolving (synchronously, via the configured Resolver) on a
// miss or expiry.
func (c *Cache) Lookup(ctx context.Context, name string) (*Entry, error) {
	if e, ok := c.entries[name]; ok && !c.expired(e) {
		return e, nil
	}
	addr, port, err := c.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Name:   name,
		Addr:   addr,
		Port:   port,
		Expiry: c.now().Add(c.ttl),
	}
	c.entries[name] = e
	return e, nil
}

// expired reports whether e's expiry boundary has passed. At exactly the
// expiry instant the entry is treated as expired, forcing re-resolution
// on the next use.
func (c *Cache) expired(e *Entry) bool {
	return !c.now().Before(e.Expiry)
}

// Invalidate drops any cached entry for name, forcing the next Lookup to
// re-resolve.
func (c *Cache) Invalidate(name string) {
	delete(c.entries, name)
}

// Len reports how many entries are currently cached.
func (c *Cache) Len() int { return len(c.entries) }
