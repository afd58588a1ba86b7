package handlers

import (
	"net/http"
	"time"

	"github.com/upb/apicenter/services/providers"
	"github.com/upb/apicenter/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// AdapterCounter reports how many adapters are registered.
type AdapterCounter interface {
	Count() int
	Configured(mode providers.Mode) []providers.Name
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	catalog AdapterCounter
	logger  *zap.Logger
	now     func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(catalog AdapterCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// The service is ready once at least one provider adapter is registered.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(providers.Modes))
	for _, mode := range providers.Modes {
		if len(h.catalog.Configured(mode)) > 0 {
			checks[string(mode)] = "configured"
		} else {
			checks[string(mode)] = "none_configured"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if h.catalog.Count() == 0 {
		h.logger.Warn("readiness check failed: no providers configured")
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
