package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs
	mux.HandleFunc("/api/v1.0/jobs", s.app.JobHandler.CreateJobHandler)
	mux.HandleFunc("/api/v1.0/jobexecutions", s.app.JobHandler.ExecuteJobHandler)

	// API routes - File uploads
	mux.HandleFunc("/api/v1.0/files", s.app.FileHandler.UploadHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Health probes
	mux.HandleFunc("/health/liveness", s.app.HealthHandler.LivenessHandler)
	mux.HandleFunc("/health/readiness", s.app.HealthHandler.ReadinessHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
