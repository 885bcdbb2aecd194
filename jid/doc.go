// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid implements XMPP addresses (historically called "Jabber ID's" or
// "JID's") as described in RFC 7622: a canonicalized
// (localpart, domainpart, resourcepart) triple, prepared with nodeprep,
// nameprep, and resourceprep so that two JIDs that look different on the
// wire compare equal once canonicalized.
package jid // import "git.sr.ht/~xmppd/xmppd/jid"
