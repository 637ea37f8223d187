// SPDX-License-Identifier: AGPL-3.0-or-later
// Package ssrf validates and pins outbound URLs for the Webhook Executor,
// defeating server-side request forgery, DNS-rebinding, and redirect-based
// pivots into internal networks (spec §4.3.2).
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/triops/actioncore/internal/domain/models"
)

// Resolver is the subset of net.Resolver the guard needs, so tests can
// inject a resolver that returns a public IP on validation and a private IP
// on a later call (the DNS-rebinding scenario in spec §8 property 3).
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Pinned is the result of validating a URL: the parsed URL plus the address
// set captured at validation time. Every subsequent HTTP attempt for the
// same request must dial only these addresses.
type Pinned struct {
	URL       *url.URL
	Addresses []net.IP
}

// Guard validates outbound URLs before the Webhook Executor ever attempts a
// connection and returns the result as a Pinned address set, whose
// DialContext refuses to connect to anything outside that set.
type Guard struct {
	resolver Resolver
}

func NewGuard(resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver}
}

// Validate runs the full guard (steps 1-6 of spec §4.3.2) once per top-level
// request. It must not be re-run per retry attempt; callers reuse the
// returned Pinned set for every attempt via DialContext.
func (g *Guard) Validate(ctx context.Context, rawURL string) (*Pinned, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSSRFSchemeRejected, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, models.ErrSSRFSchemeRejected
	}
	if u.User != nil {
		return nil, models.ErrSSRFUserinfoRejected
	}

	host := u.Hostname()
	if host == "" {
		return nil, models.ErrSSRFHostDenied
	}
	if IsDeniedHostname(host) {
		return nil, models.ErrSSRFHostDenied
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedAddress(ip) {
			return nil, models.ErrSSRFAddressRejected
		}
		return &Pinned{URL: u, Addresses: []net.IP{ip}}, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSSRFNoAddresses, err)
	}
	if len(addrs) == 0 {
		return nil, models.ErrSSRFNoAddresses
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if IsBlockedAddress(a.IP) {
			return nil, models.ErrSSRFAddressRejected
		}
		ips = append(ips, a.IP)
	}

	return &Pinned{URL: u, Addresses: ips}, nil
}

// ValidateRedirect re-validates a Location URL encountered mid-request. A
// redirect may never be followed to a host or IP that was not itself
// independently validated and pinned (spec §4.3.2: "HTTP redirects").
func (g *Guard) ValidateRedirect(ctx context.Context, rawURL string) (*Pinned, error) {
	pinned, err := g.Validate(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSSRFRedirectRejected, err)
	}
	return pinned, nil
}

// DialContext returns a dial function that ignores whatever host the caller
// passes and connects only to one of p.Addresses, using the original port.
// Installed as http.Transport.DialContext so every attempt for a request
// (including retries and redirects that reuse the same Pinned set) is
// immune to DNS being re-queried and returning a different, unvalidated
// address between validation and connect.
func (p *Pinned) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			port = "80"
			if p.URL.Scheme == "https" {
				port = "443"
			}
		}
		var lastErr error
		for _, ip := range p.Addresses {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no pinned addresses to dial")
		}
		return nil, lastErr
	}
}

// CheckRedirect builds an http.Client.CheckRedirect callback that
// re-validates every redirect target through the full guard, rejecting the
// request outright rather than silently following an unvalidated host.
func (g *Guard) CheckRedirect(ctx context.Context, onRevalidate func(*Pinned)) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		pinned, err := g.ValidateRedirect(ctx, req.URL.String())
		if err != nil {
			return err
		}
		if onRevalidate != nil {
			onRevalidate(pinned)
		}
		return nil
	}
}
