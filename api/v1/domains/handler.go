package domains

import (
	"errors"
	"net/http"

	"agencyhub/api/v1/middleware"
	"agencyhub/internal/domainstore"
	"agencyhub/internal/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler exposes the domain lifecycle over HTTP. These endpoints use
// their own response shapes rather than the shared envelope because the
// dashboard consumes them directly.
type Handler struct {
	svc    *lifecycle.Service
	logger *logrus.Entry
}

// NewHandler creates a new domains handler
func NewHandler(svc *lifecycle.Service, logger *logrus.Entry) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.WithField("component", "domains-api"),
	}
}

// Create handles POST /api/v1/domains
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hostname is required"})
		return
	}

	res, err := h.svc.Create(c.Request.Context(), middleware.CurrentUID(c), middleware.CurrentTenantID(c), req.Hostname)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"domain":           toDomainDTO(res.Domain),
		"dns_instructions": res.Instructions,
		"message":          res.Message,
	}
	if res.CNAMETarget != "" {
		body["vercel_cname"] = res.CNAMETarget
	}
	c.JSON(http.StatusCreated, body)
}

// Verify handles POST /api/v1/domains/verify
func (h *Handler) Verify(c *gin.Context) {
	var req DomainIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id is required"})
		return
	}

	res, err := h.svc.Verify(c.Request.Context(), middleware.CurrentUID(c), req.DomainID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if !res.Verified {
		// An unverified record is an expected outcome: still 200, with
		// the found and expected values side by side.
		found := res.Found
		if found == nil {
			found = []string{}
		}
		c.JSON(http.StatusOK, gin.H{
			"verified":        false,
			"error":           res.Reason,
			"found_records":   found,
			"expected_record": toExpectedRecord(res.Expected),
			"message":         res.Message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified": true,
		"domain":   toDomainDTO(res.Domain),
		"message":  res.Message,
	})
}

// Provision handles POST /api/v1/domains/provision
func (h *Handler) Provision(c *gin.Context) {
	var req DomainIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id is required"})
		return
	}

	res, err := h.svc.Provision(c.Request.Context(), middleware.CurrentUID(c), req.DomainID)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"status":  string(res.Status),
		"domain":  toDomainDTO(res.Domain),
		"message": res.Message,
	}
	if len(res.Verification) > 0 {
		body["vercel_verification"] = res.Verification
	}
	c.JSON(http.StatusOK, body)
}

// Status handles GET and POST /api/v1/domains/status. GET reads
// domain_id from the query string, POST from the body.
func (h *Handler) Status(c *gin.Context) {
	var domainID string
	if c.Request.Method == http.MethodGet {
		domainID = c.Query("domain_id")
	} else {
		var req DomainIDRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			domainID = req.DomainID
		}
	}
	if domainID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id is required"})
		return
	}

	res, err := h.svc.Status(c.Request.Context(), middleware.CurrentUID(c), domainID)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"status":  string(res.Status),
		"domain":  toDomainDTO(res.Domain),
		"message": res.Message,
	}
	if len(res.Verification) > 0 {
		body["vercel_verification"] = res.Verification
	}
	c.JSON(http.StatusOK, body)
}

// Delete handles POST /api/v1/domains/delete
func (h *Handler) Delete(c *gin.Context) {
	var req DomainIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id is required"})
		return
	}

	res, err := h.svc.Delete(c.Request.Context(), middleware.CurrentUID(c), req.DomainID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":  true,
		"hostname": res.Hostname,
		"message":  res.Message,
	})
}

// List handles GET /api/v1/domains
func (h *Handler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Request.Context(), middleware.CurrentUID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domains": toDomainDTOs(rows),
	})
}

// fail maps lifecycle and store errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		validationErr *lifecycle.ValidationError
		activeErr     *lifecycle.ActiveDomainError
		statusErr     *lifecycle.StatusError
		providerErr   *lifecycle.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
	case errors.As(err, &activeErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "you already have an active domain",
			"existing_hostname": activeErr.ExistingHostname,
		})
	case errors.Is(err, domainstore.ErrHostnameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "hostname already registered"})
	case errors.As(err, &statusErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          statusErr.Error(),
			"current_status": string(statusErr.Current),
		})
	case errors.Is(err, domainstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
	case errors.Is(err, domainstore.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not own this domain"})
	case errors.As(err, &providerErr):
		body := gin.H{"error": providerErr.Message}
		if providerErr.Data != nil {
			body["vercel_data"] = providerErr.Data
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, domainstore.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "the domain changed state, reload and retry"})
	default:
		h.logger.WithError(err).Error("domain request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
