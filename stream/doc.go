// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package stream contains the stream-level error conditions defined by
// RFC 6120 §4.9.3 and used by the sx engine to close a misbehaving or
// unauthorized stream :
//
//     An XML stream is a container for the exchange of XML elements
//     between any two entities over a network. The start of an XML
//     stream is denoted unambiguously by an opening "stream header" (an
//     XML <stream> tag with appropriate attributes and namespace
//     declarations), while the end of the XML stream is denoted
//     unambiguously by a closing </stream> tag.
package stream // import "git.sr.ht/~xmppd/xmppd/stream"
