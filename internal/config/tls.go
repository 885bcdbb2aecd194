// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
)

// BuildTLSConfig loads a *tls.Config from a combined cert+key PEM file
// and an optional CA chain, the shape every "pemfile"/"cachain" pair in
// config names (router.pemfile, local.pemfile/cachain). A combined
// PEM containing both the certificate and the private key is passed as
// both arguments to tls.LoadX509KeyPair, which scans each file
// independently for the block type it wants. Empty pemfile disables TLS
// (nil, nil).
func BuildTLSConfig(pemfile, cachain string) (*tls.Config, error) {
	if pemfile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(pemfile, pemfile)
	if err != nil {
		return nil, fmt.Errorf("config: load cert/key from %s: %w", pemfile, err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cachain == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(cachain)
	if err != nil {
		return nil, fmt.Errorf("config: read CA chain %s: %w", cachain, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("config: no certificates found in %s", cachain)
	}
	cfg.ClientCAs = pool
	cfg.RootCAs = pool
	return cfg, nil
}

// BuildAccessList converts an Access config group into an
// *accesslist.List, the order/allow/deny shape the router binary applies
// to inbound component connections. Order "deny,allow" defaults to DenyAllow (only an explicit
// allow entry permits); anything else, including the spec's documented
// default "allow,deny", defaults to AllowDeny.
func BuildAccessList(a Access) *accesslist.List {
	order := accesslist.AllowDeny
	if a.Order == "deny,allow" {
		order = accesslist.DenyAllow
	}
	l := accesslist.New(order)
	for _, p := range a.Allow {
		l.Allow(p)
	}
	for _, p := range a.Deny {
		l.Deny(p)
	}
	return l
}
