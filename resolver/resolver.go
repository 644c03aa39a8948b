// Package resolver resolves a DPS service name to candidate endpoint hosts
// via DNS SRV records, for deployments that address the provisioning
// service by name instead of a literal host.
package resolver

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// Resolver resolves a domain's SRV records to target hosts.
type Resolver struct {
	// DNSServer is the resolver to query, e.g. "127.0.0.53:53".
	DNSServer string
}

// New builds a Resolver that queries the given DNS server.
func New(dnsServer string) *Resolver {
	return &Resolver{DNSServer: dnsServer}
}

// Resolve performs a DNS SRV lookup for domain and returns the target host
// of each answer, ignoring port (callers are expected to already know the
// provisioning service's port).
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]string, error) {
	msg := new(dns.Msg)
	msg.Id = dns.Id()
	msg.RecursionDesired = true
	msg.Question = []dns.Question{{Name: dns.Fqdn(domain), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}}

	client := new(dns.Client)
	in, _, err := client.ExchangeContext(ctx, msg, r.DNSServer)
	if err != nil {
		return nil, fmt.Errorf("resolver: SRV query for %q: %w", domain, err)
	}

	targets := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			targets = append(targets, srv.Target)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("resolver: no SRV records found for %q", domain)
	}
	return targets, nil
}
