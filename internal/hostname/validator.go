package hostname

import (
	"fmt"
	"net"
	"strings"
)

const (
	maxHostnameLen = 253
	minLabelLen    = 2
	maxLabelLen    = 63
	// A vanity hostname must be a subdomain of a subdomain
	// (join.example.com); apex zones are never routed here.
	minLabels = 3
)

// reservedSuffixes are domains a tenant can never claim: loopback and
// test-only TLDs, the platform's own zones, and the hosting provider's
// wildcard zones. Pointing a "custom" domain back at infrastructure we
// already operate would create a routing loop.
var reservedSuffixes = []string{
	"localhost",
	"local",
	"test",
	"invalid",
	"example",
	"internal",
	"agencyhub.com",
	"agencyhub.app",
	"vercel.app",
	"vercel-dns.com",
	"now.sh",
}

// Normalize lowercases and trims a candidate hostname, dropping any
// trailing dot a DNS-minded user may have pasted in.
func Normalize(hostname string) string {
	h := strings.TrimSpace(hostname)
	h = strings.ToLower(h)
	h = strings.TrimSuffix(h, ".")
	return h
}

// Validate checks a normalized hostname against DNS syntax and platform
// policy. It is pure and performs no lookups; a hostname that passes is
// assumed syntactically routable.
func Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if len(hostname) > maxHostnameLen {
		return fmt.Errorf("hostname exceeds %d characters", maxHostnameLen)
	}
	if ip := net.ParseIP(strings.Trim(hostname, "[]")); ip != nil {
		return fmt.Errorf("IP addresses are not allowed, use a domain name")
	}
	if strings.Count(hostname, ".") < minLabels-1 {
		return fmt.Errorf("apex domains are not supported, use a subdomain (e.g. join.%s)", hostname)
	}
	for _, suffix := range reservedSuffixes {
		if hostname == suffix || strings.HasSuffix(hostname, "."+suffix) {
			return fmt.Errorf("hostnames under %q are reserved", suffix)
		}
	}
	for _, label := range strings.Split(hostname, ".") {
		if err := validateLabel(label); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(label string) error {
	if len(label) < minLabelLen || len(label) > maxLabelLen {
		return fmt.Errorf("each hostname label must be %d-%d characters, got %q", minLabelLen, maxLabelLen, label)
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return fmt.Errorf("hostname label %q must not start or end with a hyphen", label)
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return fmt.Errorf("hostname label %q contains invalid character %q", label, r)
		}
	}
	return nil
}
