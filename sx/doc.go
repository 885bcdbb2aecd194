// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package sx implements the streaming-XML state machine shared by the
// router, C2S gateway, and S2S gateway: it turns a raw byte stream into a
// sequence of top-level NAD elements and back, negotiating stream
// features such as STARTTLS, SASL and resource binding through an ordered
// list of plugins.
//
// It generalizes a StreamFeature idiom into a Plugin contract. TLS is
// applied by wrapping the whole connection (the STARTTLS plugin replaces
// Stream.Conn with a *tls.Conn); no byte-level filter sits between the
// socket and the parser.
package sx // import "git.sr.ht/~xmppd/xmppd/sx"
