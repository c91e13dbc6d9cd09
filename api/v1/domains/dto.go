package domains

import (
	"time"

	"agencyhub/internal/lifecycle"
	"agencyhub/internal/model"
)

// CreateRequest is the body of POST /api/v1/domains.
type CreateRequest struct {
	Hostname string `json:"hostname" binding:"required"`
}

// DomainIDRequest is the body shared by verify, provision, status and
// delete.
type DomainIDRequest struct {
	DomainID string `json:"domain_id" binding:"required"`
}

// DomainDTO is the row as returned to the tenant. Provider internals
// (raw metadata, verification token) stay server-side; the token is
// only ever handed out inside dns_instructions.
type DomainDTO struct {
	ID         string     `json:"id"`
	Hostname   string     `json:"hostname"`
	Status     string     `json:"status"`
	VerifiedAt *time.Time `json:"verified_at"`
	LastError  *string    `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toDomainDTO(d *model.CustomDomain) DomainDTO {
	return DomainDTO{
		ID:         d.ID,
		Hostname:   d.Hostname,
		Status:     string(d.Status),
		VerifiedAt: d.VerifiedAt,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func toDomainDTOs(rows []model.CustomDomain) []DomainDTO {
	out := make([]DomainDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainDTO(&rows[i]))
	}
	return out
}

// expectedRecordDTO mirrors the TXT record the tenant must create. The
// verify response historically used snake_case for the relative name
// while dns_instructions uses camelCase; both are kept as-is because
// the dashboard parses them that way.
type expectedRecordDTO struct {
	Name         string `json:"name"`
	NameRelative string `json:"name_relative"`
	Value        string `json:"value"`
}

func toExpectedRecord(r lifecycle.DNSRecord) expectedRecordDTO {
	return expectedRecordDTO{
		Name:         r.Name,
		NameRelative: r.NameRelative,
		Value:        r.Value,
	}
}
