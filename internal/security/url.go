// Package security guards the one place the engine makes an outbound
// request against a user-supplied address: ingest.url. It rejects schemes
// other than http/https and resolves the host before connecting so a
// workflow cannot use the engine as a proxy into internal infrastructure.
package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// ValidateFetchURL parses raw and rejects anything that is not a safe,
// public http(s) URL. It does not itself perform the fetch.
func ValidateFetchURL(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("security: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("security: unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("security: url has no host")
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("security: resolve host %q: %w", u.Hostname(), err)
	}
	for _, ip := range ips {
		if !isPublicUnicast(ip.IP) {
			return nil, fmt.Errorf("security: host %q resolves to a non-public address %s", u.Hostname(), ip.IP)
		}
	}
	return u, nil
}

// isPublicUnicast reports whether ip is safe to connect to from the
// engine: not loopback, link-local, multicast, or a private RFC1918/ULA
// range.
func isPublicUnicast(ip net.IP) bool {
	switch {
	case ip.IsLoopback(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified(),
		ip.IsPrivate():
		return false
	default:
		return true
	}
}
