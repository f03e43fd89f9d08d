// -----------------------------------------------------------------------
// Job handlers - submission and execution API
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler handles job submission and execution requests
type JobHandler struct {
	queue    *jobs.Queue
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(queue *jobs.Queue, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateJobHandler accepts a job submission and schedules it.
// POST /api/v1.0/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.queue.CreateAndStartJob(&req)
	if errors.Is(err, jobs.ErrNoFeature) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("datasource", req.Datasource).Msg("Failed to create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, models.JobResponse{ID: job.ID})
}

// ExecuteJobHandler starts or resumes a stored job.
// POST /api/v1.0/jobexecutions
func (h *JobHandler) ExecuteJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.JobExecution
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.queue.StartOrResumeJob(req.JobID)
	if errors.Is(err, interfaces.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to execute job")
		writeError(w, http.StatusInternalServerError, "failed to execute job")
		return
	}

	writeJSON(w, http.StatusAccepted, models.JobResponse{ID: req.JobID})
}
