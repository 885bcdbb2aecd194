// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package nad implements "Not A DOM": an intrusive, flat, append-only tree
// representation of one XML element and its descendants, built from a
// handful of growable slices instead of a pointer graph.
//
// A NAD holds three parallel arrays — elements, attributes, and a single
// byte pool backing every name, namespace, and character-data string as an
// offset/length pair into that pool — plus the integer indices that link
// them (parent, first child, next sibling). There are no pointers between
// nodes, so a NAD can be reset and reused by truncating its slices rather
// than by the garbage collector walking and releasing a tree, which is the
// point: one stanza should cost one set of slice growths, not one
// allocation per element, attribute, and string.
//
// A Cache hands out NADs with Get and takes them back when NAD.Free is called, so that
// under steady-state traffic a stream's NADs settle into a small number of
// reused backing arrays instead of constantly allocating and discarding.
package nad // import "git.sr.ht/~xmppd/xmppd/nad"
