package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"agencyhub/internal/dnsverify"
	"agencyhub/internal/domainstore"
	"agencyhub/internal/hostname"
	"agencyhub/internal/model"
	"agencyhub/internal/token"
	"agencyhub/internal/vercel"
)

// DNSVerifier checks the ownership TXT record.
type DNSVerifier interface {
	VerifyTXT(ctx context.Context, host, expectedToken string) dnsverify.Result
}

// Provider is the hosting provider's domain API.
type Provider interface {
	AddDomain(ctx context.Context, host string) (*vercel.Domain, error)
	GetConfig(ctx context.Context, host string) (*vercel.DomainConfig, error)
	GetStatus(ctx context.Context, host string) (*vercel.Status, error)
	VerifyDomain(ctx context.Context, host string) (*vercel.Domain, error)
	RemoveDomain(ctx context.Context, host string) error
}

// StatusCache throttles provider polling during provisioning. A nil
// cache disables throttling; cache failures never fail a request.
type StatusCache interface {
	Get(ctx context.Context, host string) (*vercel.Status, bool)
	Set(ctx context.Context, host string, st *vercel.Status)
}

// Service orchestrates the domain lifecycle. Each method is one
// short-lived unit of work triggered by an inbound request; the store's
// transition operation is the only synchronization point between
// concurrent calls on the same row.
type Service struct {
	store    *domainstore.Store
	dns      DNSVerifier
	provider Provider
	cache    StatusCache
	logger   *logrus.Entry
}

// NewService wires the orchestrator. logger must be non-nil; cache may
// be nil.
func NewService(store *domainstore.Store, dns DNSVerifier, provider Provider, cache StatusCache, logger *logrus.Entry) *Service {
	return &Service{
		store:    store,
		dns:      dns,
		provider: provider,
		cache:    cache,
		logger:   logger.WithField("component", "domain-lifecycle"),
	}
}

// ValidationError reports a hostname that failed syntax or policy
// checks. No side effects were performed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ActiveDomainError reports that the caller already holds an active
// domain and may not create another.
type ActiveDomainError struct {
	ExistingHostname string
}

func (e *ActiveDomainError) Error() string {
	return "you already have an active domain: " + e.ExistingHostname
}

// StatusError reports an operation attempted from a state it is not
// legal in. Current carries the row's actual status for the caller.
type StatusError struct {
	Operation string
	Current   model.DomainStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s is not allowed while the domain is %s", e.Operation, e.Current)
}

// ProviderError reports a provider call failure after normalization.
// Data carries the provider's own payload when one exists.
type ProviderError struct {
	Message string
	Data    any
}

func (e *ProviderError) Error() string { return e.Message }

// DNSRecord is one record the tenant must create.
type DNSRecord struct {
	Name         string `json:"name"`
	NameRelative string `json:"nameRelative,omitempty"`
	Value        string `json:"value"`
}

// DNSInstructions is everything the tenant needs to paste into their
// DNS provider.
type DNSInstructions struct {
	CNAME *DNSRecord `json:"cname,omitempty"`
	TXT   DNSRecord  `json:"txt"`
}

// CreateResult is the outcome of a successful create.
type CreateResult struct {
	Domain       *model.CustomDomain
	Instructions DNSInstructions
	CNAMETarget  string
	Message      string
}

// VerifyResult is the outcome of a verification attempt. Verified false
// is an expected outcome, not an error: Found and Expected let the
// tenant diagnose the mismatch themselves.
type VerifyResult struct {
	Verified bool
	Domain   *model.CustomDomain
	Found    []string
	Expected DNSRecord
	Message  string
	Reason   string
}

// ProvisionResult is the outcome of a provision call.
type ProvisionResult struct {
	Status       model.DomainStatus
	Domain       *model.CustomDomain
	Verification []vercel.Verification
	Message      string
}

// StatusResult is the outcome of a status refresh.
type StatusResult struct {
	Status       model.DomainStatus
	Domain       *model.CustomDomain
	Verification []vercel.Verification
	Message      string
}

// DeleteResult is the outcome of a delete.
type DeleteResult struct {
	Hostname string
	Message  string
}

// statusMessages is the one-per-state text the status endpoint returns.
var statusMessages = map[model.DomainStatus]string{
	model.DomainStatusDraft:        "Domain created but not yet registered. Try creating it again.",
	model.DomainStatusPendingDNS:   "Waiting for DNS records. Add the TXT record shown in the instructions, then verify.",
	model.DomainStatusVerified:     "Ownership verified. Provision the domain to go live.",
	model.DomainStatusProvisioning: "The hosting provider is issuing TLS for your domain. This usually takes a few minutes.",
	model.DomainStatusActive:       "Your domain is live.",
	model.DomainStatusError:        "The last step failed. Fix the reported issue and retry.",
}

// StatusMessage returns the human-readable label for a state.
func StatusMessage(s model.DomainStatus) string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return string(s)
}

// Create validates and claims a hostname for the caller: insert a draft
// row, register it with the provider, and move it to pending_dns with
// DNS instructions for the tenant. If anything after the insert fails
// the draft row is deleted again, so the operation is all-or-nothing
// from the tenant's perspective.
func (s *Service) Create(ctx context.Context, ownerID, tenantID int, rawHostname string) (*CreateResult, error) {
	host := hostname.Normalize(rawHostname)
	if err := hostname.Validate(host); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	if existing, err := s.store.ActiveByOwner(ctx, ownerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &ActiveDomainError{ExistingHostname: existing.Hostname}
	}

	secret, err := token.New()
	if err != nil {
		return nil, err
	}

	row := &model.CustomDomain{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		OwnerID:           ownerID,
		Hostname:          host,
		Status:            model.DomainStatusDraft,
		VerificationToken: secret,
	}
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}

	dom, err := s.provider.AddDomain(ctx, host)
	if err != nil {
		s.rollbackDraft(ctx, row, ownerID)
		if vercel.IsDomainInUse(err) {
			return nil, domainstore.ErrHostnameTaken
		}
		return nil, &ProviderError{Message: "failed to register domain with the hosting provider: " + err.Error()}
	}

	cnameTarget := vercel.ExtractCNAMETarget(dom)
	if cnameTarget == "" {
		if cfg, cfgErr := s.provider.GetConfig(ctx, host); cfgErr == nil {
			cnameTarget = cfg.CNAME
		} else {
			s.logger.WithError(cfgErr).WithField("hostname", host).
				Warn("could not fetch provider config for CNAME target")
		}
	}

	providerID := dom.Name
	updated, err := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusPendingDNS, domainstore.TransitionOpts{
		ProviderDomainID: &providerID,
		ProviderMetadata: datatypes.JSON(dom.Raw),
	})
	if err != nil {
		s.rollbackDraft(ctx, row, ownerID)
		return nil, err
	}

	instructions := DNSInstructions{
		TXT: DNSRecord{
			Name:         dnsverify.RecordName(host),
			NameRelative: dnsverify.RelativeRecordName(host),
			Value:        secret,
		},
	}
	if cnameTarget != "" {
		instructions.CNAME = &DNSRecord{Name: host, Value: cnameTarget}
	}

	s.logger.WithFields(logrus.Fields{"hostname": host, "domain_id": updated.ID}).
		Info("domain created, waiting for DNS")

	return &CreateResult{
		Domain:       updated,
		Instructions: instructions,
		CNAMETarget:  cnameTarget,
		Message:      "Domain created. Add the DNS records shown, then verify ownership.",
	}, nil
}

func (s *Service) rollbackDraft(ctx context.Context, row *model.CustomDomain, ownerID int) {
	if err := s.store.Delete(ctx, row.ID, ownerID); err != nil {
		s.logger.WithError(err).WithField("domain_id", row.ID).
			Error("failed to roll back draft domain")
	}
}

// Verify runs the DNS ownership check. Legal only from pending_dns and
// error. A mismatch leaves the row untouched and echoes the found and
// expected records side by side.
func (s *Service) Verify(ctx context.Context, ownerID int, domainID string) (*VerifyResult, error) {
	row, err := s.store.GetOwned(ctx, domainID, ownerID)
	if err != nil {
		return nil, err
	}
	if row.Status != model.DomainStatusPendingDNS && row.Status != model.DomainStatusError {
		return nil, &StatusError{Operation: "verify", Current: row.Status}
	}

	expected := DNSRecord{
		Name:         dnsverify.RecordName(row.Hostname),
		NameRelative: dnsverify.RelativeRecordName(row.Hostname),
		Value:        row.VerificationToken,
	}

	res := s.dns.VerifyTXT(ctx, row.Hostname, row.VerificationToken)
	if !res.Verified {
		return &VerifyResult{
			Verified: false,
			Domain:   row,
			Found:    res.Found,
			Expected: expected,
			Message:  res.Message,
			Reason:   string(res.Outcome),
		}, nil
	}

	opts := domainstore.TransitionOpts{}
	if row.VerifiedAt == nil {
		now := time.Now().UTC()
		opts.VerifiedAt = &now
	}
	updated, err := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusVerified, opts)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("hostname", row.Hostname).Info("domain ownership verified")

	return &VerifyResult{
		Verified: true,
		Domain:   updated,
		Message:  "Ownership verified. You can now provision the domain.",
	}, nil
}

// Provision hands the verified hostname to the provider. The row moves
// to provisioning before the provider call, so a crash mid-call leaves
// it recoverable rather than silently stuck in verified. Immediate
// readiness short-circuits straight to active.
func (s *Service) Provision(ctx context.Context, ownerID int, domainID string) (*ProvisionResult, error) {
	row, err := s.store.GetOwned(ctx, domainID, ownerID)
	if err != nil {
		return nil, err
	}
	if row.Status != model.DomainStatusVerified {
		return nil, &StatusError{Operation: "provision", Current: row.Status}
	}

	if _, err := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusProvisioning, domainstore.TransitionOpts{}); err != nil {
		return nil, err
	}

	dom, err := s.provider.AddDomain(ctx, row.Hostname)
	if err != nil {
		msg := err.Error()
		if _, terr := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusError, domainstore.TransitionOpts{
			LastError: &msg,
		}); terr != nil {
			s.logger.WithError(terr).WithField("domain_id", row.ID).
				Error("failed to record provisioning failure")
		}
		var apiErr *vercel.APIError
		perr := &ProviderError{Message: "hosting provider rejected the domain: " + msg}
		if errors.As(err, &apiErr) {
			perr.Data = apiErr
		}
		return nil, perr
	}

	st, stErr := s.provider.GetStatus(ctx, row.Hostname)
	if stErr == nil && st.Configured {
		updated, err := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusActive, domainstore.TransitionOpts{
			ProviderMetadata: datatypes.JSON(st.Raw),
		})
		if err != nil {
			return nil, err
		}
		s.logger.WithField("hostname", row.Hostname).Info("domain active immediately after provisioning")
		return &ProvisionResult{
			Status:  model.DomainStatusActive,
			Domain:  updated,
			Message: StatusMessage(model.DomainStatusActive),
		}, nil
	}
	if stErr != nil {
		s.logger.WithError(stErr).WithField("hostname", row.Hostname).
			Warn("provider status check failed after add, continuing as provisioning")
	}

	// Accepted but not yet configured: one metadata-only refresh, no
	// second status write.
	updated, err := s.store.UpdateProviderMetadata(ctx, row.ID, ownerID, nil, datatypes.JSON(dom.Raw))
	if err != nil {
		return nil, err
	}

	verification := dom.Verification
	if st != nil && len(st.Verification) > 0 {
		verification = st.Verification
	}

	return &ProvisionResult{
		Status:       model.DomainStatusProvisioning,
		Domain:       updated,
		Verification: verification,
		Message:      StatusMessage(model.DomainStatusProvisioning),
	}, nil
}

// Status reports the row's state. While provisioning it polls the
// provider (through the cache when one is configured) and promotes the
// row to active on readiness; for every other state it is a pure read.
func (s *Service) Status(ctx context.Context, ownerID int, domainID string) (*StatusResult, error) {
	row, err := s.store.GetOwned(ctx, domainID, ownerID)
	if err != nil {
		return nil, err
	}

	if row.Status != model.DomainStatusProvisioning {
		return &StatusResult{
			Status:  row.Status,
			Domain:  row,
			Message: StatusMessage(row.Status),
		}, nil
	}

	st, fromCache := s.cachedStatus(ctx, row.Hostname)
	if st == nil {
		fresh, err := s.provider.GetStatus(ctx, row.Hostname)
		if err != nil {
			// Transient provider trouble does not move the state
			// machine; the caller polls again.
			s.logger.WithError(err).WithField("hostname", row.Hostname).
				Warn("provider status poll failed")
			return &StatusResult{
				Status:  row.Status,
				Domain:  row,
				Message: "Could not reach the hosting provider. Try again shortly.",
			}, nil
		}
		st = fresh
		if !st.Configured && !st.Verified && len(st.Verification) > 0 {
			st = s.nudgeProviderVerification(ctx, row.Hostname, st)
		}
		if s.cache != nil {
			s.cache.Set(ctx, row.Hostname, st)
		}
	}

	if st.Configured {
		updated, err := s.store.Transition(ctx, row.ID, ownerID, model.DomainStatusActive, domainstore.TransitionOpts{
			ProviderMetadata: datatypes.JSON(st.Raw),
		})
		if err != nil {
			return nil, err
		}
		s.logger.WithField("hostname", row.Hostname).Info("domain is now active")
		return &StatusResult{
			Status:  model.DomainStatusActive,
			Domain:  updated,
			Message: StatusMessage(model.DomainStatusActive),
		}, nil
	}

	updated := row
	if !fromCache {
		updated, err = s.store.UpdateProviderMetadata(ctx, row.ID, ownerID, nil, datatypes.JSON(st.Raw))
		if err != nil {
			return nil, err
		}
	}

	return &StatusResult{
		Status:       model.DomainStatusProvisioning,
		Domain:       updated,
		Verification: st.Verification,
		Message:      StatusMessage(model.DomainStatusProvisioning),
	}, nil
}

// nudgeProviderVerification triggers the provider's own verification
// pass for a hostname whose challenges are still outstanding. The
// provider re-checks challenges on its own schedule, too slowly for a
// polling UI, so each fresh poll triggers one pass. A pass that flips
// verified is followed by a single status recheck; any failure keeps
// the original status and the next poll retries.
func (s *Service) nudgeProviderVerification(ctx context.Context, host string, st *vercel.Status) *vercel.Status {
	dom, err := s.provider.VerifyDomain(ctx, host)
	if err != nil {
		s.logger.WithError(err).WithField("hostname", host).
			Debug("provider verification pass did not complete")
		return st
	}
	if !dom.Verified {
		return st
	}

	refreshed, err := s.provider.GetStatus(ctx, host)
	if err != nil {
		s.logger.WithError(err).WithField("hostname", host).
			Warn("status recheck failed after provider verification")
		return st
	}
	return refreshed
}

func (s *Service) cachedStatus(ctx context.Context, host string) (*vercel.Status, bool) {
	if s.cache == nil {
		return nil, false
	}
	st, ok := s.cache.Get(ctx, host)
	if !ok {
		return nil, false
	}
	return st, true
}

// Delete removes the binding. Provider-side removal is attempted first
// when the row ever reached the provider, but its failure never blocks
// the local delete: the record must not stay stuck referencing provider
// resources it can no longer reach.
func (s *Service) Delete(ctx context.Context, ownerID int, domainID string) (*DeleteResult, error) {
	row, err := s.store.GetOwned(ctx, domainID, ownerID)
	if err != nil {
		return nil, err
	}

	if providerCleanupNeeded(row.Status) {
		if err := s.provider.RemoveDomain(ctx, row.Hostname); err != nil {
			s.logger.WithError(err).WithField("hostname", row.Hostname).
				Warn("provider-side removal failed, deleting local record anyway")
		}
	}

	if err := s.store.Delete(ctx, row.ID, ownerID); err != nil {
		return nil, err
	}

	s.logger.WithField("hostname", row.Hostname).Info("domain deleted")

	return &DeleteResult{
		Hostname: row.Hostname,
		Message:  "Domain deleted.",
	}, nil
}

// providerCleanupNeeded reports whether provisioning was ever attempted
// for a row in this state. error is only reachable through the
// provision path, so it counts.
func providerCleanupNeeded(s model.DomainStatus) bool {
	switch s {
	case model.DomainStatusProvisioning, model.DomainStatusActive, model.DomainStatusError:
		return true
	}
	return false
}

// List returns the caller's domains, newest first.
func (s *Service) List(ctx context.Context, ownerID int) ([]model.CustomDomain, error) {
	return s.store.ListByOwner(ctx, ownerID)
}
