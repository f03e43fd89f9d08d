// -----------------------------------------------------------------------
// File handler - multipart upload ingestion
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources/upload"
)

// allowedUploadExtensions are the file types the extraction pipeline can
// turn into text.
var allowedUploadExtensions = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".html": "text/html",
	".htm":  "text/html",
}

// FileHandler handles file upload requests
type FileHandler struct {
	queue       *jobs.Queue
	maxFileSize int64
	logger      arbor.ILogger
}

// NewFileHandler creates a new file handler
func NewFileHandler(queue *jobs.Queue, maxFileSize int64, logger arbor.ILogger) *FileHandler {
	if maxFileSize <= 0 {
		maxFileSize = 32 << 20
	}
	return &FileHandler{
		queue:       queue,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// UploadHandler accepts a multipart file and schedules its indexing.
// POST /api/v1.0/files
func (h *FileHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedUploadExtensions[ext]
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type "+ext)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	datasource := r.FormValue("datasource")
	if datasource == "" {
		datasource = upload.Datasource
	}

	req := &models.JobRequest{
		Datasource:     datasource,
		UploadFilename: header.Filename,
	}
	att := &models.Attachment{
		Filename:    header.Filename,
		ContentType: contentType,
		Content:     content,
	}
	job, err := h.queue.CreateAndStartJobWithAttachment(req, att)
	if errors.Is(err, jobs.ErrNoFeature) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Failed to create upload job")
		writeError(w, http.StatusInternalServerError, "failed to create upload job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("filename", header.Filename).
		Int("size", len(content)).
		Msg("File upload accepted")
	writeJSON(w, http.StatusAccepted, models.JobResponse{ID: job.ID})
}
