package model

import (
	"time"

	"gorm.io/datatypes"
)

// DomainStatus is the lifecycle state of a custom domain binding.
type DomainStatus string

const (
	DomainStatusDraft        DomainStatus = "draft"
	DomainStatusPendingDNS   DomainStatus = "pending_dns"
	DomainStatusVerified     DomainStatus = "verified"
	DomainStatusProvisioning DomainStatus = "provisioning"
	DomainStatusActive       DomainStatus = "active"
	DomainStatusError        DomainStatus = "error"
)

// Valid reports whether s is a known lifecycle state.
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainStatusDraft, DomainStatusPendingDNS, DomainStatusVerified,
		DomainStatusProvisioning, DomainStatusActive, DomainStatusError:
		return true
	}
	return false
}

// CustomDomain is one tenant's attempt to bind a vanity hostname to the
// platform. One row per (tenant, hostname) binding; the hostname is
// globally unique across tenants.
//
// Status moves only through the store's transition operation.
// VerificationToken is written once at creation and never regenerated
// while the row exists.
type CustomDomain struct {
	ID                string         `gorm:"type:char(36);primaryKey" json:"id"`
	TenantID          int            `gorm:"not null;index" json:"tenant_id"`
	OwnerID           int            `gorm:"not null;index" json:"owner_id"`
	Hostname          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"hostname"`
	Status            DomainStatus   `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	VerificationToken string         `gorm:"type:char(64);not null" json:"verification_token"`
	VerifiedAt        *time.Time     `json:"verified_at"`
	ProviderDomainID  *string        `gorm:"type:varchar(255)" json:"provider_domain_id"`
	ProviderMetadata  datatypes.JSON `gorm:"type:json" json:"provider_metadata"`
	LastError         *string        `gorm:"type:varchar(512)" json:"last_error"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for CustomDomain model
func (CustomDomain) TableName() string {
	return "custom_domains"
}
