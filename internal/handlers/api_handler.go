// -----------------------------------------------------------------------
// API handlers - version and unmatched routes
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// APIHandler serves the small system endpoints.
type APIHandler struct {
	logger arbor.ILogger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{logger: logger}
}

// VersionHandler returns the build version.
// GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": common.GetVersion()})
}

// NotFoundHandler answers unmatched API routes with a JSON 404.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
