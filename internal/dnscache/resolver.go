// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dnscache

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// SRVResolver is the default in-process Resolver for single-binary
// deployments: it looks up _xmpp-server._tcp.<name> and falls back to
// the bare A record on port 5269 if no SRV record exists; AAAA records
// are not queried.
type SRVResolver struct {
	// Server is the "host:port" of the recursive resolver to query, e.g.
	// "127.0.0.1:53".
	Server string
	Client *dns.Client
}

// NewSRVResolver returns a resolver that queries server using the given
// dns.Client, or a client with sane defaults if client is nil.
func NewSRVResolver(server string, client *dns.Client) *SRVResolver {
	if client == nil {
		client = new(dns.Client)
	}
	return &SRVResolver{Server: server, Client: client}
}

// Resolve implements Resolver.
func (r *SRVResolver) Resolve(ctx context.Context, name string) (string, uint16, error) {
	srvName := dns.Fqdn("_xmpp-server._tcp." + name)
	m := new(dns.Msg)
	m.SetQuestion(srvName, dns.TypeSRV)
	m.RecursionDesired = true

	in, _, err := r.Client.ExchangeContext(ctx, m, r.Server)
	if err == nil {
		for _, rr := range in.Answer {
			if srv, ok := rr.(*dns.SRV); ok {
				return strings.TrimSuffix(srv.Target, "."), srv.Port, nil
			}
		}
	}

	// No SRV record (or the query failed outright): fall back to the
	// domain itself on the standard server-to-server port.
	m = new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	in, _, err = r.Client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return "", 0, fmt.Errorf("dnscache: resolving %q: %w", name, err)
	}
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), 5269, nil
		}
	}
	return "", 0, fmt.Errorf("dnscache: no address found for %q", name)
}
