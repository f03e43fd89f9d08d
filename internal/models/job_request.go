package models

import "time"

// JobRequest is the inbound submission that a feature turns into a Job.
// The JSON field names follow the public API.
type JobRequest struct {
	Datasource     string     `json:"datasource" validate:"required"`
	DocID          string     `json:"docId,omitempty"`
	DocDisplayID   string     `json:"docDisplayId,omitempty"`
	URI            string     `json:"uri,omitempty"`
	LoadDirectory  bool       `json:"loadDirectory,omitempty"`
	ModifiedSince  *time.Time `json:"modifiedSince,omitempty"`
	ConnectionID   string     `json:"connectionId,omitempty"`
	SyncDeletions  *bool      `json:"syncDeletions,omitempty"`
	UploadFilename string     `json:"-"` // set by the multipart upload endpoint
}

// JobResponse is returned by the submission endpoints.
type JobResponse struct {
	ID string `json:"id"`
}

// JobExecution triggers execution (or resumption) of a stored job.
type JobExecution struct {
	JobID string `json:"jobId" validate:"required"`
}
