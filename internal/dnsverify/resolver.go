package dnsverify

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RecordPrefix is the well-known label the verification TXT record lives
// under. Lookups always target the prefixed name, never the apex, so a
// tenant can prove control of the exact subdomain being claimed without
// touching the parent zone.
const RecordPrefix = "_agencyhub-verify"

const lookupTimeout = 5 * time.Second

// Outcome classifies a failed verification so callers can tell the user
// to wait versus to fix their DNS configuration.
type Outcome string

const (
	OutcomeVerified  Outcome = "verified"
	OutcomeMismatch  Outcome = "mismatch"
	OutcomeNoRecord  Outcome = "no_record"
	OutcomeTransient Outcome = "transient"
	OutcomeLookup    Outcome = "lookup_failed"
)

// Result is the outcome of a single TXT verification pass.
type Result struct {
	Verified bool
	Outcome  Outcome
	Found    []string
	Message  string
}

// Lookuper resolves TXT records. *net.Resolver satisfies it; tests
// substitute a fake.
type Lookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Client performs DNS-TXT ownership checks. It holds no per-domain
// state and never mutates anything; calls are safe to repeat.
type Client struct {
	lookuper Lookuper
	timeout  time.Duration
}

// NewClient creates a verification client. A nil lookuper uses the
// system resolver.
func NewClient(lookuper Lookuper) *Client {
	if lookuper == nil {
		lookuper = net.DefaultResolver
	}
	return &Client{
		lookuper: lookuper,
		timeout:  lookupTimeout,
	}
}

// RecordName returns the fully-qualified name of the verification
// record for a hostname.
func RecordName(hostname string) string {
	return RecordPrefix + "." + hostname
}

// RelativeRecordName returns the record name relative to the tenant's
// zone, the form most DNS provider UIs expect in the host field. For
// join.example.com the zone is example.com, so the relative name is
// _agencyhub-verify.join.
func RelativeRecordName(hostname string) string {
	labels := strings.Split(hostname, ".")
	if len(labels) <= 2 {
		return RecordPrefix
	}
	return RecordPrefix + "." + strings.Join(labels[:len(labels)-2], ".")
}

// VerifyTXT looks up the verification record for hostname and compares
// every found value against expectedToken byte for byte. The token is
// case-sensitive and is never re-normalized beyond quote stripping and
// whitespace trimming.
func (c *Client) VerifyTXT(ctx context.Context, hostname, expectedToken string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	records, err := c.lookuper.LookupTXT(ctx, RecordName(hostname))
	if err != nil {
		return classifyLookupError(err)
	}

	found := make([]string, 0, len(records))
	for _, r := range records {
		found = append(found, normalizeRecord(r))
	}
	if len(found) == 0 {
		return Result{
			Outcome: OutcomeNoRecord,
			Message: "TXT record not found. If you just added it, DNS propagation can take a few minutes.",
		}
	}

	for _, r := range found {
		if r == expectedToken {
			return Result{
				Verified: true,
				Outcome:  OutcomeVerified,
				Found:    found,
				Message:  "TXT record matched.",
			}
		}
	}

	return Result{
		Outcome: OutcomeMismatch,
		Found:   found,
		Message: "A TXT record exists but its value does not match. Check for a copy-paste error.",
	}
}

// normalizeRecord undoes transformations a tenant's DNS provider may
// apply to a TXT value: chunked multi-string records rendered as
// "part1" "part2", surrounding quotes, and stray whitespace.
func normalizeRecord(record string) string {
	s := strings.TrimSpace(record)
	s = strings.ReplaceAll(s, `" "`, "")
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

func classifyLookupError(err error) Result {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return Result{
				Outcome: OutcomeNoRecord,
				Message: "TXT record not found. If you just added it, DNS propagation can take a few minutes.",
			}
		case dnsErr.IsTimeout || dnsErr.IsTemporary:
			return Result{
				Outcome: OutcomeTransient,
				Message: "The DNS server returned a temporary error. Wait a moment and retry.",
			}
		}
	}
	return Result{
		Outcome: OutcomeLookup,
		Message: "DNS lookup failed: " + err.Error(),
	}
}
