package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agencyhub/internal/dnsverify"
	"agencyhub/internal/domainstore"
	"agencyhub/internal/model"
	"agencyhub/internal/vercel"
)

type fakeDNS struct {
	result dnsverify.Result
	calls  int
}

func (f *fakeDNS) VerifyTXT(_ context.Context, _, _ string) dnsverify.Result {
	f.calls++
	return f.result
}

type fakeProvider struct {
	addResp    *vercel.Domain
	addErr     error
	cfgResp    *vercel.DomainConfig
	cfgErr     error
	statusResp *vercel.Status
	statusSeq  []*vercel.Status
	statusErr  error
	verifyResp *vercel.Domain
	verifyErr  error
	removeErr  error

	addCalls    int
	cfgCalls    int
	statusCalls int
	verifyCalls int
	removeCalls int
}

func (f *fakeProvider) AddDomain(_ context.Context, host string) (*vercel.Domain, error) {
	f.addCalls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.addResp != nil {
		return f.addResp, nil
	}
	raw, _ := json.Marshal(map[string]string{"name": host})
	return &vercel.Domain{Name: host, Raw: raw}, nil
}

func (f *fakeProvider) GetConfig(_ context.Context, _ string) (*vercel.DomainConfig, error) {
	f.cfgCalls++
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	if f.cfgResp != nil {
		return f.cfgResp, nil
	}
	return &vercel.DomainConfig{CNAME: "cname.vercel-dns.com"}, nil
}

func (f *fakeProvider) GetStatus(_ context.Context, _ string) (*vercel.Status, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statusSeq) > 0 {
		st := f.statusSeq[0]
		f.statusSeq = f.statusSeq[1:]
		return st, nil
	}
	if f.statusResp != nil {
		return f.statusResp, nil
	}
	return &vercel.Status{Raw: json.RawMessage(`{}`)}, nil
}

func (f *fakeProvider) VerifyDomain(_ context.Context, host string) (*vercel.Domain, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyResp != nil {
		return f.verifyResp, nil
	}
	return &vercel.Domain{Name: host}, nil
}

func (f *fakeProvider) RemoveDomain(_ context.Context, _ string) error {
	f.removeCalls++
	return f.removeErr
}

type fakeCache struct {
	entries map[string]*vercel.Status
	hits    int
}

func (f *fakeCache) Get(_ context.Context, host string) (*vercel.Status, bool) {
	st, ok := f.entries[host]
	if ok {
		f.hits++
	}
	return st, ok
}

func (f *fakeCache) Set(_ context.Context, host string, st *vercel.Status) {
	if f.entries == nil {
		f.entries = map[string]*vercel.Status{}
	}
	f.entries[host] = st
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestService(t *testing.T, dns *fakeDNS, provider *fakeProvider, cache StatusCache) (*Service, *domainstore.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.CustomDomain{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	store := domainstore.New(db)
	return NewService(store, dns, provider, cache, testLogger()), store
}

func seedDomain(t *testing.T, store *domainstore.Store, ownerID int, host string, status model.DomainStatus) *model.CustomDomain {
	t.Helper()
	d := &model.CustomDomain{
		ID:                uuid.NewString(),
		TenantID:          1,
		OwnerID:           ownerID,
		Hostname:          host,
		Status:            status,
		VerificationToken: "f2ca1bb6c7e907d06dafe4687e579fce76b37e4e93b7605022da52e6ccc26fd2",
	}
	if err := store.Create(context.Background(), d); err != nil {
		t.Fatalf("Failed to seed domain: %v", err)
	}
	return d
}

func TestCreate_HappyPath(t *testing.T) {
	provider := &fakeProvider{
		addResp: &vercel.Domain{
			Name: "join.example.com",
			Verification: []vercel.Verification{
				{Type: "CNAME", Value: "cname.vercel-dns.com"},
			},
			Raw: json.RawMessage(`{"name":"join.example.com"}`),
		},
	}
	svc, _ := newTestService(t, &fakeDNS{}, provider, nil)

	res, err := svc.Create(context.Background(), 1, 1, "Join.Example.COM")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if res.Domain.Status != model.DomainStatusPendingDNS {
		t.Errorf("Expected status pending_dns, got %s", res.Domain.Status)
	}
	if res.Domain.Hostname != "join.example.com" {
		t.Errorf("Expected normalized hostname, got %q", res.Domain.Hostname)
	}
	if res.Instructions.TXT.Name != "_agencyhub-verify.join.example.com" {
		t.Errorf("Unexpected TXT record name %q", res.Instructions.TXT.Name)
	}
	if res.Instructions.TXT.Value != res.Domain.VerificationToken {
		t.Error("TXT instruction value must be the verification token")
	}
	if len(res.Domain.VerificationToken) != 64 {
		t.Errorf("Expected 64-char token, got %d chars", len(res.Domain.VerificationToken))
	}
	if res.Instructions.CNAME == nil || res.Instructions.CNAME.Value != "cname.vercel-dns.com" {
		t.Errorf("Expected CNAME instruction from verification entry, got %+v", res.Instructions.CNAME)
	}
	if res.Domain.ProviderDomainID == nil || *res.Domain.ProviderDomainID != "join.example.com" {
		t.Errorf("Expected provider domain id persisted, got %v", res.Domain.ProviderDomainID)
	}
	// CNAME came from the add response; no config fallback needed.
	if provider.cfgCalls != 0 {
		t.Errorf("Expected no GetConfig call, got %d", provider.cfgCalls)
	}
}

func TestCreate_CNAMEFallsBackToConfig(t *testing.T) {
	provider := &fakeProvider{
		addResp: &vercel.Domain{Name: "join.example.com", Raw: json.RawMessage(`{}`)},
		cfgResp: &vercel.DomainConfig{CNAME: "cname.vercel-dns.com"},
	}
	svc, _ := newTestService(t, &fakeDNS{}, provider, nil)

	res, err := svc.Create(context.Background(), 1, 1, "join.example.com")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if provider.cfgCalls != 1 {
		t.Errorf("Expected config fallback call, got %d", provider.cfgCalls)
	}
	if res.CNAMETarget != "cname.vercel-dns.com" {
		t.Errorf("Expected CNAME from config fallback, got %q", res.CNAMETarget)
	}
}

func TestCreate_InvalidHostname(t *testing.T) {
	provider := &fakeProvider{}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)

	_, err := svc.Create(context.Background(), 1, 1, "example.com")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if provider.addCalls != 0 {
		t.Error("No provider call may happen for an invalid hostname")
	}
	rows, _ := store.ListByOwner(context.Background(), 1)
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestCreate_RejectsSecondActiveDomain(t *testing.T) {
	svc, store := newTestService(t, &fakeDNS{}, &fakeProvider{}, nil)
	seedDomain(t, store, 1, "live.example.com", model.DomainStatusActive)

	_, err := svc.Create(context.Background(), 1, 1, "join.example.com")
	var aerr *ActiveDomainError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected ActiveDomainError, got %v", err)
	}
	if aerr.ExistingHostname != "live.example.com" {
		t.Errorf("Expected existing hostname echoed, got %q", aerr.ExistingHostname)
	}
	rows, _ := store.ListByOwner(context.Background(), 1)
	if len(rows) != 1 {
		t.Errorf("Expected no new row, got %d rows", len(rows))
	}
}

func TestCreate_DuplicateHostname(t *testing.T) {
	svc, store := newTestService(t, &fakeDNS{}, &fakeProvider{}, nil)
	seedDomain(t, store, 2, "join.example.com", model.DomainStatusPendingDNS)

	_, err := svc.Create(context.Background(), 1, 1, "join.example.com")
	if !errors.Is(err, domainstore.ErrHostnameTaken) {
		t.Errorf("Expected ErrHostnameTaken, got %v", err)
	}
}

func TestCreate_ProviderFailureRollsBackDraft(t *testing.T) {
	provider := &fakeProvider{addErr: &vercel.APIError{StatusCode: 500, Message: "boom"}}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)

	_, err := svc.Create(context.Background(), 1, 1, "join.example.com")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}

	rows, _ := store.ListByOwner(context.Background(), 1)
	if len(rows) != 0 {
		t.Errorf("Expected draft row rolled back, found %d rows", len(rows))
	}
}

func TestCreate_ProviderConflictReportedAsTaken(t *testing.T) {
	provider := &fakeProvider{addErr: &vercel.APIError{
		StatusCode: 409, Code: "domain_already_in_use", Message: "in use",
	}}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)

	_, err := svc.Create(context.Background(), 1, 1, "join.example.com")
	if !errors.Is(err, domainstore.ErrHostnameTaken) {
		t.Errorf("Expected ErrHostnameTaken for provider conflict, got %v", err)
	}
	rows, _ := store.ListByOwner(context.Background(), 1)
	if len(rows) != 0 {
		t.Errorf("Expected draft rolled back, found %d rows", len(rows))
	}
}

func TestVerify_Success(t *testing.T) {
	dns := &fakeDNS{result: dnsverify.Result{Verified: true, Outcome: dnsverify.OutcomeVerified}}
	svc, store := newTestService(t, dns, &fakeProvider{}, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusPendingDNS)

	res, err := svc.Verify(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !res.Verified {
		t.Fatal("Expected verified result")
	}
	if res.Domain.Status != model.DomainStatusVerified {
		t.Errorf("Expected status verified, got %s", res.Domain.Status)
	}
	if res.Domain.VerifiedAt == nil {
		t.Error("Expected verified_at set")
	}
}

func TestVerify_MismatchKeepsStatus(t *testing.T) {
	dns := &fakeDNS{result: dnsverify.Result{
		Outcome: dnsverify.OutcomeMismatch,
		Found:   []string{"wrong-value"},
		Message: "A TXT record exists but its value does not match.",
	}}
	svc, store := newTestService(t, dns, &fakeProvider{}, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusPendingDNS)

	res, err := svc.Verify(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if res.Verified {
		t.Fatal("Expected verification failure")
	}
	if len(res.Found) != 1 || res.Found[0] != "wrong-value" {
		t.Errorf("Expected found records echoed, got %v", res.Found)
	}
	if res.Expected.Value != d.VerificationToken {
		t.Error("Expected record must carry the token")
	}

	row, _ := store.Get(context.Background(), d.ID)
	if row.Status != model.DomainStatusPendingDNS {
		t.Errorf("Status must remain pending_dns, got %s", row.Status)
	}
}

func TestVerify_IllegalStates(t *testing.T) {
	for _, status := range []model.DomainStatus{
		model.DomainStatusVerified,
		model.DomainStatusProvisioning,
		model.DomainStatusActive,
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, store := newTestService(t, &fakeDNS{}, &fakeProvider{}, nil)
			d := seedDomain(t, store, 1, "join.example.com", status)

			_, err := svc.Verify(context.Background(), 1, d.ID)
			var serr *StatusError
			if !errors.As(err, &serr) {
				t.Fatalf("Expected StatusError, got %v", err)
			}
			if serr.Current != status {
				t.Errorf("Expected current status %s, got %s", status, serr.Current)
			}
		})
	}
}

func TestVerify_RecoversFromError(t *testing.T) {
	dns := &fakeDNS{result: dnsverify.Result{Verified: true, Outcome: dnsverify.OutcomeVerified}}
	svc, store := newTestService(t, dns, &fakeProvider{}, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusError)

	res, err := svc.Verify(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if res.Domain.Status != model.DomainStatusVerified {
		t.Errorf("Expected error -> verified recovery, got %s", res.Domain.Status)
	}
}

func TestProvision_ImmediateReadiness(t *testing.T) {
	provider := &fakeProvider{
		statusResp: &vercel.Status{Configured: true, Verified: true, Raw: json.RawMessage(`{"verified":true}`)},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusVerified)

	res, err := svc.Provision(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if res.Status != model.DomainStatusActive {
		t.Errorf("Expected active, got %s", res.Status)
	}
}

func TestProvision_DeferredSSL(t *testing.T) {
	provider := &fakeProvider{
		addResp: &vercel.Domain{
			Name: "join.example.com",
			Verification: []vercel.Verification{
				{Type: "TXT", Domain: "_vercel.example.com", Value: "vc-domain-verify=abc"},
			},
			Raw: json.RawMessage(`{"name":"join.example.com","verified":false}`),
		},
		statusResp: &vercel.Status{Configured: false, Raw: json.RawMessage(`{"verified":false}`)},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusVerified)

	res, err := svc.Provision(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning, got %s", res.Status)
	}
	if len(res.Domain.ProviderMetadata) == 0 {
		t.Error("Expected provider metadata refreshed")
	}
	if len(res.Verification) == 0 {
		t.Error("Expected provider verification challenges surfaced")
	}

	row, _ := store.Get(context.Background(), d.ID)
	if row.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected row in provisioning, got %s", row.Status)
	}
}

func TestProvision_ProviderFailureTransitionsToError(t *testing.T) {
	provider := &fakeProvider{addErr: &vercel.APIError{StatusCode: 500, Code: "internal_error", Message: "boom"}}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusVerified)

	_, err := svc.Provision(context.Background(), 1, d.ID)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if perr.Data == nil {
		t.Error("Expected provider payload attached")
	}

	row, _ := store.Get(context.Background(), d.ID)
	if row.Status != model.DomainStatusError {
		t.Errorf("Expected status error, got %s", row.Status)
	}
	if row.LastError == nil {
		t.Error("Expected last_error recorded")
	}
}

func TestProvision_RequiresVerifiedStatus(t *testing.T) {
	for _, status := range []model.DomainStatus{
		model.DomainStatusDraft,
		model.DomainStatusPendingDNS,
		model.DomainStatusProvisioning,
		model.DomainStatusActive,
	} {
		t.Run(string(status), func(t *testing.T) {
			provider := &fakeProvider{}
			svc, store := newTestService(t, &fakeDNS{}, provider, nil)
			d := seedDomain(t, store, 1, "join.example.com", status)

			_, err := svc.Provision(context.Background(), 1, d.ID)
			var serr *StatusError
			if !errors.As(err, &serr) {
				t.Fatalf("Expected StatusError, got %v", err)
			}
			if provider.addCalls != 0 {
				t.Error("Provider must not be called from an illegal state")
			}
			row, _ := store.Get(context.Background(), d.ID)
			if row.Status != status {
				t.Errorf("Status must remain %s, got %s", status, row.Status)
			}
		})
	}
}

func TestErrorRecoveryThroughVerifyThenProvision(t *testing.T) {
	dns := &fakeDNS{result: dnsverify.Result{Verified: true, Outcome: dnsverify.OutcomeVerified}}
	provider := &fakeProvider{
		statusResp: &vercel.Status{Configured: true, Raw: json.RawMessage(`{"verified":true}`)},
	}
	svc, store := newTestService(t, dns, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusError)

	vres, err := svc.Verify(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Verify() from error failed: %v", err)
	}
	if vres.Domain.Status != model.DomainStatusVerified {
		t.Fatalf("Expected verified after recovery, got %s", vres.Domain.Status)
	}

	pres, err := svc.Provision(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Provision() after recovery failed: %v", err)
	}
	if pres.Status != model.DomainStatusActive {
		t.Errorf("Expected active, got %s", pres.Status)
	}
}

func TestStatus_PureReadOutsideProvisioning(t *testing.T) {
	for _, status := range []model.DomainStatus{
		model.DomainStatusDraft,
		model.DomainStatusPendingDNS,
		model.DomainStatusVerified,
		model.DomainStatusActive,
		model.DomainStatusError,
	} {
		t.Run(string(status), func(t *testing.T) {
			provider := &fakeProvider{}
			svc, store := newTestService(t, &fakeDNS{}, provider, nil)
			d := seedDomain(t, store, 1, "join.example.com", status)

			res, err := svc.Status(context.Background(), 1, d.ID)
			if err != nil {
				t.Fatalf("Status() failed: %v", err)
			}
			if res.Status != status {
				t.Errorf("Expected status %s, got %s", status, res.Status)
			}
			if res.Message == "" {
				t.Error("Expected a per-state message")
			}
			if provider.statusCalls != 0 {
				t.Errorf("No provider poll expected for %s, got %d calls", status, provider.statusCalls)
			}
		})
	}
}

func TestStatus_PromotesToActive(t *testing.T) {
	provider := &fakeProvider{
		statusResp: &vercel.Status{Configured: true, Raw: json.RawMessage(`{"verified":true}`)},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if res.Status != model.DomainStatusActive {
		t.Errorf("Expected active, got %s", res.Status)
	}

	// Once active, further status calls are pure reads.
	res2, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if res2.Status != model.DomainStatusActive {
		t.Errorf("Expected active, got %s", res2.Status)
	}
	if provider.statusCalls != 1 {
		t.Errorf("Expected exactly one provider poll, got %d", provider.statusCalls)
	}
}

func TestStatus_StillProvisioning(t *testing.T) {
	provider := &fakeProvider{
		statusResp: &vercel.Status{
			Configured: false,
			Verification: []vercel.Verification{
				{Type: "TXT", Value: "vc-domain-verify=abc"},
			},
			Raw: json.RawMessage(`{"verified":false}`),
		},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning, got %s", res.Status)
	}
	if len(res.Verification) == 0 {
		t.Error("Expected provider challenges surfaced while provisioning")
	}
	if len(res.Domain.ProviderMetadata) == 0 {
		t.Error("Expected metadata refreshed in place")
	}
}

func TestStatus_TriggersProviderVerificationPass(t *testing.T) {
	provider := &fakeProvider{
		statusSeq: []*vercel.Status{
			{
				Configured: false,
				Verified:   false,
				Verification: []vercel.Verification{
					{Type: "TXT", Value: "vc-domain-verify=abc"},
				},
				Raw: json.RawMessage(`{"verified":false}`),
			},
			{Configured: true, Verified: true, Raw: json.RawMessage(`{"verified":true}`)},
		},
		verifyResp: &vercel.Domain{Name: "join.example.com", Verified: true},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if provider.verifyCalls != 1 {
		t.Errorf("Expected one provider verification pass, got %d", provider.verifyCalls)
	}
	if provider.statusCalls != 2 {
		t.Errorf("Expected status recheck after verification, got %d calls", provider.statusCalls)
	}
	if res.Status != model.DomainStatusActive {
		t.Errorf("Expected active after successful verification pass, got %s", res.Status)
	}
}

func TestStatus_VerificationPassNotReady(t *testing.T) {
	provider := &fakeProvider{
		statusResp: &vercel.Status{
			Configured: false,
			Verified:   false,
			Verification: []vercel.Verification{
				{Type: "TXT", Value: "vc-domain-verify=abc"},
			},
			Raw: json.RawMessage(`{"verified":false}`),
		},
		verifyResp: &vercel.Domain{Name: "join.example.com", Verified: false},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if provider.verifyCalls != 1 {
		t.Errorf("Expected one provider verification pass, got %d", provider.verifyCalls)
	}
	if provider.statusCalls != 1 {
		t.Errorf("Unverified pass must not recheck status, got %d calls", provider.statusCalls)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning preserved, got %s", res.Status)
	}
	if len(res.Verification) == 0 {
		t.Error("Expected outstanding challenges surfaced")
	}
}

func TestStatus_VerificationPassFailureIsNonFatal(t *testing.T) {
	provider := &fakeProvider{
		statusResp: &vercel.Status{
			Configured: false,
			Verified:   false,
			Verification: []vercel.Verification{
				{Type: "TXT", Value: "vc-domain-verify=abc"},
			},
			Raw: json.RawMessage(`{"verified":false}`),
		},
		verifyErr: &vercel.APIError{StatusCode: 400, Code: "missing_txt_record", Message: "record not found"},
	}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() must not fail when the verification pass fails: %v", err)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning preserved, got %s", res.Status)
	}
}

func TestStatus_ProviderFailureKeepsState(t *testing.T) {
	provider := &fakeProvider{statusErr: &vercel.APIError{StatusCode: 502, Message: "bad gateway"}}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() must not fail on provider trouble: %v", err)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning preserved, got %s", res.Status)
	}
}

func TestStatus_UsesCache(t *testing.T) {
	provider := &fakeProvider{}
	cache := &fakeCache{entries: map[string]*vercel.Status{
		"join.example.com": {Configured: false, Raw: json.RawMessage(`{}`)},
	}}
	svc, store := newTestService(t, &fakeDNS{}, provider, cache)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusProvisioning)

	res, err := svc.Status(context.Background(), 1, d.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if res.Status != model.DomainStatusProvisioning {
		t.Errorf("Expected provisioning, got %s", res.Status)
	}
	if provider.statusCalls != 0 {
		t.Errorf("Expected cache to absorb the poll, provider called %d times", provider.statusCalls)
	}
	if cache.hits != 1 {
		t.Errorf("Expected one cache hit, got %d", cache.hits)
	}
}

func TestDelete_ProviderCleanupForProvisionedDomains(t *testing.T) {
	tests := []struct {
		status      model.DomainStatus
		wantRemoval bool
	}{
		{status: model.DomainStatusDraft, wantRemoval: false},
		{status: model.DomainStatusPendingDNS, wantRemoval: false},
		{status: model.DomainStatusVerified, wantRemoval: false},
		{status: model.DomainStatusProvisioning, wantRemoval: true},
		{status: model.DomainStatusActive, wantRemoval: true},
		{status: model.DomainStatusError, wantRemoval: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			provider := &fakeProvider{}
			svc, store := newTestService(t, &fakeDNS{}, provider, nil)
			d := seedDomain(t, store, 1, "join.example.com", tt.status)

			res, err := svc.Delete(context.Background(), 1, d.ID)
			if err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if res.Hostname != "join.example.com" {
				t.Errorf("Expected hostname echoed, got %q", res.Hostname)
			}

			gotRemoval := provider.removeCalls > 0
			if gotRemoval != tt.wantRemoval {
				t.Errorf("Provider removal called = %v, want %v", gotRemoval, tt.wantRemoval)
			}
			if _, err := store.Get(context.Background(), d.ID); !errors.Is(err, domainstore.ErrNotFound) {
				t.Errorf("Expected row removed, got %v", err)
			}
		})
	}
}

func TestDelete_ProviderFailureDoesNotBlock(t *testing.T) {
	provider := &fakeProvider{removeErr: &vercel.APIError{StatusCode: 500, Message: "boom"}}
	svc, store := newTestService(t, &fakeDNS{}, provider, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusActive)

	if _, err := svc.Delete(context.Background(), 1, d.ID); err != nil {
		t.Fatalf("Delete() must succeed despite provider failure: %v", err)
	}
	if _, err := store.Get(context.Background(), d.ID); !errors.Is(err, domainstore.ErrNotFound) {
		t.Errorf("Expected row removed, got %v", err)
	}
}

func TestDelete_OwnershipEnforced(t *testing.T) {
	svc, store := newTestService(t, &fakeDNS{}, &fakeProvider{}, nil)
	d := seedDomain(t, store, 1, "join.example.com", model.DomainStatusActive)

	if _, err := svc.Delete(context.Background(), 2, d.ID); !errors.Is(err, domainstore.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}
