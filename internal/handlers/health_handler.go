// -----------------------------------------------------------------------
// Health handlers - liveness and aggregated readiness
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// readinessTimeout bounds each indicator check.
const readinessTimeout = 5 * time.Second

type componentHealth struct {
	Status interfaces.HealthStatus `json:"status"`
}

type healthResponse struct {
	Status     interfaces.HealthStatus    `json:"status"`
	Components map[string]componentHealth `json:"components,omitempty"`
}

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	indicators []interfaces.HealthIndicator
	logger     arbor.ILogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(logger arbor.ILogger, indicators ...interfaces.HealthIndicator) *HealthHandler {
	return &HealthHandler{
		indicators: indicators,
		logger:     logger,
	}
}

// LivenessHandler reports that the process is running.
// GET /health/liveness
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: interfaces.HealthUp})
}

// ReadinessHandler aggregates all indicators; any DOWN component turns the
// response into a 503.
// GET /health/readiness
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	overall := interfaces.HealthUp
	components := make(map[string]componentHealth, len(h.indicators))

	for _, indicator := range h.indicators {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		status := indicator.Check(ctx)
		cancel()

		components[indicator.Name()] = componentHealth{Status: status}
		if status != interfaces.HealthUp {
			overall = interfaces.HealthDown
			h.logger.Warn().
				Str("component", indicator.Name()).
				Msg("Readiness component DOWN")
		}
	}

	code := http.StatusOK
	if overall == interfaces.HealthDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: overall, Components: components})
}
