package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rxscout/backend/internal/app"
	"github.com/rxscout/backend/internal/domain"
	"github.com/rxscout/backend/internal/usecase"
)

// Version is reported by the health check.
const Version = "1.0.0"

// Operations exposes pipeline internals to the status endpoints.
type Operations interface {
	Status() app.Status
	RunJob(name string) bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service *usecase.PharmacyService
	ops     Operations
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithOperations enables the status endpoints.
func WithOperations(ops Operations) HandlerOption {
	return func(h *Handler) {
		h.ops = ops
	}
}

// NewHandler creates a new HTTP handler. A nil service makes every lookup
// endpoint answer 501, as do the status endpoints without WithOperations.
func NewHandler(service *usecase.PharmacyService, opts ...HandlerOption) *Handler {
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PharmacySearchRequest is the body of POST /api/v1/pharmacies/search.
type PharmacySearchRequest struct {
	Query     string   `json:"query"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// CompareRequest is the body of POST /api/v1/prices/compare.
type CompareRequest struct {
	Query string   `json:"query"`
	Types []string `json:"types,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "rxscout-backend",
		"version": Version,
	})
}

// SearchPharmacies handles free-text pharmacy and price lookups
func (h *Handler) SearchPharmacies(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req PharmacySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var origin *domain.Coordinates
	if req.Latitude != nil && req.Longitude != nil {
		origin = &domain.Coordinates{Lat: *req.Latitude, Lon: *req.Longitude}
	} else if req.Latitude != nil || req.Longitude != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be given together"})
		return
	}

	result, err := h.service.FindPharmacies(h.context(c), req.Query, origin)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(statusFor(result.Outcome), result)
}

// ComparePrices handles price comparison across pharmacy types
func (h *Handler) ComparePrices(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	types := make([]domain.PharmacyType, 0, len(req.Types))
	for _, raw := range req.Types {
		t, ok := domain.ParsePharmacyType(strings.ToLower(strings.TrimSpace(raw)))
		if !ok || t == domain.PharmacyUnknown {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pharmacy type: " + raw})
			return
		}
		types = append(types, t)
	}

	result, err := h.service.ComparePrices(h.context(c), req.Query, types)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(statusFor(result.Outcome), result)
}

// GenericAlternatives lists generic equivalents of the named brand
func (h *Handler) GenericAlternatives(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	result, err := h.service.FindGenericAlternatives(h.context(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(statusFor(result.Outcome), result)
}

// MedicationInfo summarises a medication
func (h *Handler) MedicationInfo(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	result, err := h.service.GetMedicationInfo(h.context(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(statusFor(result.Outcome), result)
}

// Status reports cache, rate limit, geocoder and janitor state
func (h *Handler) Status(c *gin.Context) {
	if h.ops == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Status not available"})
		return
	}
	c.JSON(http.StatusOK, h.ops.Status())
}

// RunJob triggers a housekeeping job immediately
func (h *Handler) RunJob(c *gin.Context) {
	if h.ops == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Status not available"})
		return
	}
	name := c.Param("name")
	if !h.ops.RunJob(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": name, "ran": true})
}

func (h *Handler) ready(c *gin.Context) bool {
	if h.service == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Pharmacy service not configured"})
		return false
	}
	return true
}

func (h *Handler) context(c *gin.Context) context.Context {
	return c.Request.Context()
}

func (h *Handler) fail(c *gin.Context, err error) {
	if eris.Is(err, domain.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	zap.L().Error("lookup failed",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(RequestIDHeader)),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// statusFor maps payload annotations to a status code. A payload that failed
// because every provider call failed is still returned, with 502.
func statusFor(o domain.Outcome) int {
	if o.HasReason(domain.ReasonProviderFailure) {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
