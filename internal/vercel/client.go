package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	vercelAPIBase  = "https://api.vercel.com"
	requestTimeout = 8 * time.Second
)

// Error codes Vercel returns that callers act on.
const (
	codeDomainTaken     = "domain_taken"
	codeDomainInUse     = "domain_already_in_use"
	codeNotFound        = "not_found"
	codeDomainNotFound  = "domain_not_found"
	codeForbiddenDomain = "forbidden"
)

// APIError is a normalized Vercel API error. Transport failures and
// non-2xx responses both surface as one of these; a raw transport error
// never escapes the client.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vercel: %s (%s)", e.Message, e.Code)
	}
	return "vercel: " + e.Message
}

// IsDomainInUse reports whether err means the hostname is claimed by a
// different Vercel project or account. This is a user-actionable
// conflict, not a generic failure.
func IsDomainInUse(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeDomainTaken, codeDomainInUse, codeForbiddenDomain:
		return true
	}
	return false
}

// IsNotFound reports whether err means the domain does not exist on the
// provider side.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound ||
		apiErr.Code == codeNotFound || apiErr.Code == codeDomainNotFound
}

// Verification is a challenge Vercel asks the tenant to complete before
// it will serve the domain, distinct from our own TXT ownership proof.
type Verification struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Domain is a project domain as Vercel reports it. Raw preserves the
// untouched payload for the metadata column.
type Domain struct {
	Name         string          `json:"name"`
	ApexName     string          `json:"apexName"`
	ProjectID    string          `json:"projectId"`
	Verified     bool            `json:"verified"`
	CNAME        string          `json:"cname"`
	Verification []Verification  `json:"verification"`
	Raw          json.RawMessage `json:"-"`
}

// DomainConfig is the /config endpoint payload for a domain.
type DomainConfig struct {
	Misconfigured bool            `json:"misconfigured"`
	ConfiguredBy  string          `json:"configuredBy"`
	CNAME         string          `json:"cname"`
	Raw           json.RawMessage `json:"-"`
}

// Status condenses the provider's readiness signal: Configured means
// TLS is issued and routing is live.
type Status struct {
	Configured   bool            `json:"configured"`
	Verified     bool            `json:"verified"`
	Verification []Verification  `json:"verification"`
	Raw          json.RawMessage `json:"raw"`
}

// Client talks to the Vercel project-domains API.
type Client struct {
	token     string
	projectID string
	teamID    string
	baseURL   string
	client    *http.Client
}

// NewClient creates a Vercel API client scoped to one project.
func NewClient(token, projectID, teamID string) *Client {
	return &Client{
		token:     token,
		projectID: projectID,
		teamID:    teamID,
		baseURL:   vercelAPIBase,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// AddDomain registers hostname with the project. When Vercel requires
// additional verification it still returns 2xx with verification
// entries attached; those are surfaced on the returned Domain, not as
// an error.
func (c *Client) AddDomain(ctx context.Context, hostname string) (*Domain, error) {
	path := fmt.Sprintf("/v10/projects/%s/domains", url.PathEscape(c.projectID))
	payload := map[string]string{"name": hostname}

	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return parseDomain(raw)
}

// GetDomain fetches the project-domain record for hostname.
func (c *Client) GetDomain(ctx context.Context, hostname string) (*Domain, error) {
	path := fmt.Sprintf("/v9/projects/%s/domains/%s",
		url.PathEscape(c.projectID), url.PathEscape(hostname))

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseDomain(raw)
}

// GetConfig fetches the DNS configuration Vercel expects for hostname,
// including the CNAME target when the add-domain response omitted it.
func (c *Client) GetConfig(ctx context.Context, hostname string) (*DomainConfig, error) {
	path := fmt.Sprintf("/v6/domains/%s/config", url.PathEscape(hostname))

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var cfg DomainConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &APIError{Message: "failed to parse config response: " + err.Error()}
	}
	cfg.Raw = raw
	return &cfg, nil
}

// GetStatus combines the config and domain endpoints into one readiness
// answer. Configured is true only when Vercel reports the DNS
// configuration correct and the domain verified.
func (c *Client) GetStatus(ctx context.Context, hostname string) (*Status, error) {
	cfg, err := c.GetConfig(ctx, hostname)
	if err != nil {
		return nil, err
	}

	dom, err := c.GetDomain(ctx, hostname)
	if err != nil {
		return nil, err
	}

	return &Status{
		Configured:   !cfg.Misconfigured && dom.Verified,
		Verified:     dom.Verified,
		Verification: dom.Verification,
		Raw:          dom.Raw,
	}, nil
}

// VerifyDomain triggers Vercel's own verification pass for hostname.
func (c *Client) VerifyDomain(ctx context.Context, hostname string) (*Domain, error) {
	path := fmt.Sprintf("/v9/projects/%s/domains/%s/verify",
		url.PathEscape(c.projectID), url.PathEscape(hostname))

	raw, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	return parseDomain(raw)
}

// RemoveDomain detaches hostname from the project. A not-found answer
// is success: the desired end state already holds.
func (c *Client) RemoveDomain(ctx context.Context, hostname string) error {
	path := fmt.Sprintf("/v9/projects/%s/domains/%s",
		url.PathEscape(c.projectID), url.PathEscape(hostname))

	_, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// ExtractCNAMETarget pulls the CNAME target a tenant should point their
// hostname at, from the locations Vercel has populated across API
// versions: a verification entry of type CNAME first, then the
// top-level cname field. Returns empty when neither is present, in
// which case callers fall back to GetConfig. The lookup order is a
// compatibility policy; do not reorder it.
func ExtractCNAMETarget(d *Domain) string {
	for _, v := range d.Verification {
		if v.Type == "CNAME" && v.Value != "" {
			return v.Value
		}
	}
	return d.CNAME
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	u := c.baseURL + path
	if c.teamID != "" {
		u += "?teamId=" + url.QueryEscape(c.teamID)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &APIError{Message: "failed to marshal request: " + err.Error()}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &APIError{Message: "failed to create request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
		var envelope errorEnvelope
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	return raw, nil
}

func parseDomain(raw json.RawMessage) (*Domain, error) {
	var dom Domain
	if err := json.Unmarshal(raw, &dom); err != nil {
		return nil, &APIError{Message: "failed to parse domain response: " + err.Error()}
	}
	dom.Raw = raw
	return &dom, nil
}
