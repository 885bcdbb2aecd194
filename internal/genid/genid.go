// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package genid generates the random identifiers used for stream IDs,
// dialback secrets, and anonymous authorization identities.
//
// A hex ID hand-rolled from crypto/rand would work, but
// github.com/google/uuid already exists for exactly this purpose, so this
// package wraps that instead of reimplementing ID generation.
package genid // import "git.sr.ht/~xmppd/xmppd/internal/genid"

import "github.com/google/uuid"

// Stream returns a new stream ID suitable for the 'id' attribute of a
// <stream:stream> header.
func Stream() string {
	return uuid.NewString()
}

// Secret returns a new 40-character random dialback secret, matching the
// length jabberd2 uses for its generated secrets.
func Secret() string {
	var b [20]byte
	u := uuid.New()
	copy(b[:16], u[:])
	u2 := uuid.New()
	copy(b[16:], u2[:4])
	const hex = "0123456789abcdef"
	out := make([]byte, 40)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xf]
	}
	return string(out)
}
