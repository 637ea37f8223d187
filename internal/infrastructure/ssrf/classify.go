// SPDX-License-Identifier: AGPL-3.0-or-later
package ssrf

import "net"

// cgnat is the IPv4 Carrier-Grade NAT range (RFC 6598), 100.64.0.0/10.
var cgnat = mustParseCIDR("100.64.0.0/10")

// ula is the IPv6 Unique Local Address range (RFC 4193), fc00::/7. Go's
// net.IP.IsPrivate covers this already but it is named here for clarity.
var ula = mustParseCIDR("fc00::/7")

// reservedV4 lists the IPv4 "this network", protocol-assignment,
// documentation, benchmarking and future-use ranges.
var reservedV4 = []*net.IPNet{
	mustParseCIDR("0.0.0.0/8"),
	mustParseCIDR("192.0.0.0/24"),
	mustParseCIDR("192.0.2.0/24"),
	mustParseCIDR("198.18.0.0/15"),
	mustParseCIDR("198.51.100.0/24"),
	mustParseCIDR("203.0.113.0/24"),
	mustParseCIDR("240.0.0.0/4"),
}

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsBlockedAddress classifies an IP as unsafe to connect to from the
// service: private, loopback, link-local, CGNAT, reserved/unspecified,
// multicast, or broadcast, for both IPv4 and IPv6 (spec §4.3.2 step 4/5).
func IsBlockedAddress(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		if v4.Equal(net.IPv4bcast) {
			return true
		}
		if cgnat.Contains(v4) {
			return true
		}
		for _, n := range reservedV4 {
			if n.Contains(v4) {
				return true
			}
		}
		return false
	}
	// IPv6-only checks.
	if ula.Contains(ip) {
		return true
	}
	return false
}

// deniedHostnames is the fixed denylist of hostnames the SSRF guard rejects
// outright, regardless of what they resolve to (spec §4.3.2 step 3).
var deniedHostnames = map[string]bool{
	"localhost":               true,
	"0.0.0.0":                 true,
	"169.254.169.254":         true,
	"metadata.google.internal": true,
	"metadata.azure.com":       true,
}

func IsDeniedHostname(host string) bool {
	return deniedHostnames[host]
}
