package domainstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"agencyhub/internal/model"
)

var (
	// ErrNotFound means no row exists for the given id.
	ErrNotFound = errors.New("domain not found")
	// ErrForbidden means the caller does not own the row.
	ErrForbidden = errors.New("caller does not own this domain")
	// ErrInvalidTransition means the requested status change is not in
	// the legal-transition table, or a concurrent writer moved the row
	// first.
	ErrInvalidTransition = errors.New("illegal status transition")
	// ErrHostnameTaken means the hostname is already registered, by any
	// tenant.
	ErrHostnameTaken = errors.New("hostname already registered")
)

// legalTransitions is the single source of truth for status changes.
// active is terminal except for deletion; error is recoverable through
// re-verify and re-provision.
var legalTransitions = map[model.DomainStatus][]model.DomainStatus{
	model.DomainStatusDraft:        {model.DomainStatusPendingDNS},
	model.DomainStatusPendingDNS:   {model.DomainStatusVerified},
	model.DomainStatusVerified:     {model.DomainStatusProvisioning, model.DomainStatusActive, model.DomainStatusError},
	model.DomainStatusProvisioning: {model.DomainStatusActive, model.DomainStatusError},
	model.DomainStatusError:        {model.DomainStatusVerified, model.DomainStatusProvisioning, model.DomainStatusActive},
	model.DomainStatusActive:       {},
}

func transitionAllowed(from, to model.DomainStatus) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionOpts carries the metadata written together with a status
// change. LastError set means the transition records a failure; when
// nil the column is cleared, so a successful transition never leaves a
// stale diagnostic behind.
type TransitionOpts struct {
	VerifiedAt       *time.Time
	ProviderDomainID *string
	ProviderMetadata datatypes.JSON
	LastError        *string
}

// Store persists custom domain rows. Transition is the only write path
// for the status column; UpdateProviderMetadata is the only other
// mutation and cannot touch status.
type Store struct {
	db *gorm.DB
}

// New creates a Store on the given gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new row. Hostname uniqueness is enforced by the
// unique index, not by a prior read, so two concurrent claims for the
// same hostname resolve atomically: one insert succeeds, the other
// returns ErrHostnameTaken.
func (s *Store) Create(ctx context.Context, d *model.CustomDomain) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrHostnameTaken
		}
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

// Get fetches a row by id regardless of owner.
func (s *Store) Get(ctx context.Context, id string) (*model.CustomDomain, error) {
	var d model.CustomDomain
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load domain: %w", err)
	}
	return &d, nil
}

// GetOwned fetches a row and enforces ownership.
func (s *Store) GetOwned(ctx context.Context, id string, ownerID int) (*model.CustomDomain, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return d, nil
}

// ListByOwner returns all rows the owner holds, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID int) ([]model.CustomDomain, error) {
	var rows []model.CustomDomain
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return rows, nil
}

// ActiveByOwner returns the owner's active row, or nil if none exists.
func (s *Store) ActiveByOwner(ctx context.Context, ownerID int) (*model.CustomDomain, error) {
	var d model.CustomDomain
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, model.DomainStatusActive).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active domain: %w", err)
	}
	return &d, nil
}

// Transition moves a row to newStatus after checking ownership and the
// legal-transition table. The write is a compare-and-set on the status
// read at entry: if a concurrent caller moved the row first, zero rows
// match and the call fails with ErrInvalidTransition instead of
// silently overwriting.
func (s *Store) Transition(ctx context.Context, id string, ownerID int, newStatus model.DomainStatus, opts TransitionOpts) (*model.CustomDomain, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidTransition
	}

	d, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(d.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, newStatus)
	}

	updates := map[string]any{
		"status":     newStatus,
		"last_error": opts.LastError,
	}
	if opts.VerifiedAt != nil {
		updates["verified_at"] = opts.VerifiedAt
	}
	if opts.ProviderDomainID != nil {
		updates["provider_domain_id"] = opts.ProviderDomainID
	}
	if opts.ProviderMetadata != nil {
		updates["provider_metadata"] = opts.ProviderMetadata
	}

	res := s.db.WithContext(ctx).
		Model(&model.CustomDomain{}).
		Where("id = ? AND status = ?", id, d.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to transition domain: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: row changed concurrently", ErrInvalidTransition)
	}

	return s.Get(ctx, id)
}

// UpdateProviderMetadata refreshes the cached provider payload without
// touching status. Kept separate from Transition so the state machine
// has exactly one write path.
func (s *Store) UpdateProviderMetadata(ctx context.Context, id string, ownerID int, providerDomainID *string, metadata datatypes.JSON) (*model.CustomDomain, error) {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if providerDomainID != nil {
		updates["provider_domain_id"] = providerDomainID
	}
	if metadata != nil {
		updates["provider_metadata"] = metadata
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).
			Model(&model.CustomDomain{}).
			Where("id = ?", id).
			Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update provider metadata: %w", res.Error)
		}
	}

	return s.Get(ctx, id)
}

// Delete removes a row after an ownership check. Removal is
// unconditional with respect to status.
func (s *Store) Delete(ctx context.Context, id string, ownerID int) error {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.CustomDomain{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	return nil
}

// isDuplicateKey matches unique-index violations across the MySQL and
// SQLite drivers in addition to gorm's translated error.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
