// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package nad

import (
	"encoding/xml"
	"io"
)

// Parse reads the first XML element from r and returns it as a NAD. If c
// is non-nil the NAD is taken from the cache (see Cache.Get); otherwise a
// fresh, unpooled NAD is allocated.
func Parse(r io.Reader, c *Cache) (*NAD, error) {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return ParseElement(d, start, c)
		}
	}
}

// ParseElement builds a NAD rooted at start, consuming tokens from d
// until (and including) start's matching end element. This is the
// primitive the sx parser uses: it has already consumed the opening
// <stream:stream> and hands each subsequent top-level child's start
// element here one at a time.
func ParseElement(d *xml.Decoder, start xml.StartElement, c *Cache) (*NAD, error) {
	var nd *NAD
	if c != nil {
		nd = c.Get()
	} else {
		nd = New()
	}

	root := appendStart(nd, None, start)
	cur := root
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			cur = appendStart(nd, cur, t)
		case xml.EndElement:
			if cur == root {
				return nd, nil
			}
			cur = nd.Parent(cur)
		case xml.CharData:
			nd.AppendCData(cur, string(t))
		}
	}
}

func appendStart(nd *NAD, parent int, start xml.StartElement) int {
	idx := nd.AppendElement(parent, start.Name.Local, start.Name.Space)
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		nd.AppendAttr(idx, a.Name.Local, a.Name.Space, a.Value)
	}
	return idx
}
