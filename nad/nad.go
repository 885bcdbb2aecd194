// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package nad

// None is the sentinel index used for "no parent", "no first child", "no
// next sibling", and "no attributes". Indices into Elements/Attrs are
// otherwise always >= 0.
const None = -1

// span is an offset/length pair into a NAD's byte pool.
type span struct {
	off, len int
}

// Element is one node in the tree: a name, an optional namespace, its
// depth from the NAD's root (the root is depth 0), and the links that
// thread it into the tree.
type Element struct {
	Name      span
	Namespace span
	CData     span // direct character data, concatenated

	Depth       int
	Parent      int
	FirstChild  int
	NextSibling int

	attrHead int
	attrTail int
}

// Attr is a single attribute, linked to the element that owns it.
type Attr struct {
	Elem      int
	Name      span
	Namespace span
	Value     span

	next int
}

// NAD is a flat, intrusive tree for exactly one top-level XML element and
// its descendants. The zero value is not usable; construct one with New
// or by taking one from a Cache.
type NAD struct {
	pool  []byte
	elems []Element
	attrs []Attr
	cache *Cache
}

// New returns an empty, unpooled NAD. Most callers that sit on top of a
// live stream should prefer Cache.Get so that NADs are recycled.
func New() *NAD {
	return &NAD{}
}

// reset truncates every backing slice to zero length without releasing
// their capacity, so the next stanza reuses the same arrays.
func (n *NAD) reset() {
	n.pool = n.pool[:0]
	n.elems = n.elems[:0]
	n.attrs = n.attrs[:0]
}

// intern appends s to the byte pool and returns the span referencing it.
func (n *NAD) intern(s string) span {
	off := len(n.pool)
	n.pool = append(n.pool, s...)
	return span{off: off, len: len(s)}
}

func (n *NAD) str(s span) string {
	if s.len == 0 {
		return ""
	}
	return string(n.pool[s.off : s.off+s.len])
}

// AppendElement appends a new element as the last child of parent (None
// for a new root) and returns its index.
func (n *NAD) AppendElement(parent int, name, namespace string) int {
	depth := 0
	if parent != None {
		depth = n.elems[parent].Depth + 1
	}
	idx := len(n.elems)
	n.elems = append(n.elems, Element{
		Name:        n.intern(name),
		Namespace:   n.intern(namespace),
		Depth:       depth,
		Parent:      parent,
		FirstChild:  None,
		NextSibling: None,
		attrHead:    None,
		attrTail:    None,
	})
	if parent != None {
		n.linkChild(parent, idx)
	}
	return idx
}

// linkChild appends child as the last sibling under parent's child list.
func (n *NAD) linkChild(parent, child int) {
	if n.elems[parent].FirstChild == None {
		n.elems[parent].FirstChild = child
		return
	}
	sib := n.elems[parent].FirstChild
	for n.elems[sib].NextSibling != None {
		sib = n.elems[sib].NextSibling
	}
	n.elems[sib].NextSibling = child
}

// AppendAttr appends an attribute to elem and returns its index.
func (n *NAD) AppendAttr(elem int, name, namespace, value string) int {
	idx := len(n.attrs)
	n.attrs = append(n.attrs, Attr{
		Elem:      elem,
		Name:      n.intern(name),
		Namespace: n.intern(namespace),
		Value:     n.intern(value),
		next:      None,
	})
	e := &n.elems[elem]
	if e.attrHead == None {
		e.attrHead = idx
	} else {
		n.attrs[e.attrTail].next = idx
	}
	e.attrTail = idx
	return idx
}

// AppendCData appends s to elem's direct character data.
func (n *NAD) AppendCData(elem int, s string) {
	e := &n.elems[elem]
	if e.CData.len == 0 {
		e.CData = n.intern(s)
		return
	}
	// Character data can arrive in more than one token; keep it
	// contiguous in the pool by re-interning the concatenation.
	whole := n.str(e.CData) + s
	e.CData = n.intern(whole)
}

// ElementName returns the local name of elements[i].
func (n *NAD) ElementName(i int) string { return n.str(n.elems[i].Name) }

// ElementNamespace returns the namespace URI of elements[i], or "" if
// unqualified.
func (n *NAD) ElementNamespace(i int) string { return n.str(n.elems[i].Namespace) }

// ElementCData returns the direct character data of elements[i].
func (n *NAD) ElementCData(i int) string { return n.str(n.elems[i].CData) }

// Depth returns the depth of elements[i] (root is 0).
func (n *NAD) Depth(i int) int { return n.elems[i].Depth }

// Parent returns the index of the parent of elements[i], or None.
func (n *NAD) Parent(i int) int { return n.elems[i].Parent }

// FirstChild returns the index of the first child of elements[i], or
// None.
func (n *NAD) FirstChild(i int) int { return n.elems[i].FirstChild }

// NextSibling returns the index of the next sibling of elements[i], or
// None.
func (n *NAD) NextSibling(i int) int { return n.elems[i].NextSibling }

// NumElements returns the number of elements held in the NAD.
func (n *NAD) NumElements() int { return len(n.elems) }

// Root returns the index of the NAD's single top-level element, or None
// if the NAD is empty.
func (n *NAD) Root() int {
	if len(n.elems) == 0 {
		return None
	}
	return 0
}

// Attrs returns the indices of elements[i]'s attributes, in declaration
// order.
func (n *NAD) Attrs(i int) []int {
	var out []int
	for a := n.elems[i].attrHead; a != None; a = n.attrs[a].next {
		out = append(out, a)
	}
	return out
}

// AttrName returns the local name of attrs[i].
func (n *NAD) AttrName(i int) string { return n.str(n.attrs[i].Name) }

// AttrNamespace returns the namespace URI of attrs[i].
func (n *NAD) AttrNamespace(i int) string { return n.str(n.attrs[i].Namespace) }

// AttrValue returns the value of attrs[i].
func (n *NAD) AttrValue(i int) string { return n.str(n.attrs[i].Value) }

// Attr looks up the first attribute of elements[i] with the given local
// name, ignoring namespace, and reports whether it found one.
func (n *NAD) Attr(i int, name string) (string, bool) {
	for _, a := range n.Attrs(i) {
		if n.AttrName(a) == name {
			return n.AttrValue(a), true
		}
	}
	return "", false
}

// Free returns the NAD to the Cache it was allocated from, if any. It is
// a no-op for a NAD obtained via New. After Free the NAD must not be used
// again.
func (n *NAD) Free() {
	if n.cache != nil {
		n.cache.put(n)
	}
}
