// Package urlvalidation guards outbound hook URLs against SSRF.
package urlvalidation

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Option configures URL validation behavior.
type Option func(*validationConfig)

type validationConfig struct {
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]string, error)
}

// AllowPrivateIPs disables the private IP check. Use only in tests and
// local development.
func AllowPrivateIPs() Option {
	return func(c *validationConfig) {
		c.allowPrivate = true
	}
}

// WithLookup replaces DNS resolution.
func WithLookup(fn func(ctx context.Context, host string) ([]string, error)) Option {
	return func(c *validationConfig) {
		c.lookup = fn
	}
}

// reserved lists private, loopback, link-local and other ranges that must
// not receive outbound hook calls.
var reserved = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// ValidateHookURL checks that a URL is safe to POST to: http or https, a
// hostname, no embedded credentials, and no private or reserved address.
func ValidateHookURL(ctx context.Context, rawURL string, opts ...Option) error {
	cfg := validationConfig{lookup: net.DefaultResolver.LookupHost}
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("URL must not embed credentials")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if cfg.allowPrivate {
		return nil
	}

	addrs := []string{host}
	if _, err := netip.ParseAddr(host); err != nil {
		addrs, err = cfg.lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
		}
	}

	for _, a := range addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		if isReserved(addr) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", a)
		}
	}
	return nil
}

func isReserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reserved {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
