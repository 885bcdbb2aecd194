// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package nad

// Cache is a per-stream freelist of NADs. It is not safe for concurrent use;
// every process in this module is single-threaded around its reactor, so
// a stream's Cache is only ever touched from that stream's dispatch path.
type Cache struct {
	free []*NAD
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns a NAD from the freelist if one is available, or allocates
// a new one. The returned NAD is empty and ready to be built up with
// AppendElement/AppendAttr/AppendCData, or populated by Parse.
func (c *Cache) Get() *NAD {
	if n := len(c.free); n > 0 {
		nd := c.free[n-1]
		c.free = c.free[:n-1]
		return nd
	}
	return &NAD{cache: c}
}

// put resets nd and returns it to the freelist.
func (c *Cache) put(nd *NAD) {
	nd.reset()
	nd.cache = c
	c.free = append(c.free, nd)
}

// Len reports how many NADs are currently parked on the freelist.
func (c *Cache) Len() int { return len(c.free) }
