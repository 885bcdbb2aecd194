// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package router implements the component bind protocol, route table,
// stanza forwarding, and message logging. Its route table follows a
// keyed-dispatch-table idiom, generalized from (stanza name, payload
// namespace) keys to destination component name keys, with a bind
// handshake moved from XEP-0114's SHA1 hash handshake to SASL DIGEST-MD5
// + <bind/>.
package router // import "git.sr.ht/~xmppd/xmppd/router"
