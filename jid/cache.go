// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package jid

import "container/list"

// Cache is a bounded prep cache mapping raw JID strings to their prepared
// form, so a string seen before skips nodeprep/nameprep/resourceprep.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	max     int
	entries map[string]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key string
	jid *JID
	err error
}

// NewCache returns a Cache that holds at most max prepared JIDs, evicting
// the least recently used entry once full. A max of 0 disables eviction.
func NewCache(max int) *Cache {
	return &Cache{
		max:     max,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Prep returns the prepared JID for s, preparing and caching it if this is
// the first time s has been seen. Prep is idempotent: calling it twice with
// the same raw string, or with the String() of an already-prepared JID,
// returns an equal JID both times.
func (c *Cache) Prep(s string) (*JID, error) {
	if el, ok := c.entries[s]; ok {
		c.order.MoveToFront(el)
		ent := el.Value.(*cacheEntry)
		return ent.jid, ent.err
	}

	j, err := New(s)
	c.insert(s, j, err)
	return j, err
}

func (c *Cache) insert(key string, j *JID, err error) {
	el := c.order.PushFront(&cacheEntry{key: key, jid: j, err: err})
	c.entries[key] = el

	if c.max > 0 {
		for c.order.Len() > c.max {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int { return c.order.Len() }
