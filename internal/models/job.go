// -----------------------------------------------------------------------
// Job - one ingestion unit for a single datasource
// -----------------------------------------------------------------------

package models

import "time"

// Job represents an independent unit of ingestion work. The job steps are
// the atomic actions executed against it (crawling, loading, deletion sync).
//
// Datasource names the system providing the documents to index; the actual
// technical source may be a URI, an uploaded file, or files in a directory.
type Job struct {
	ID             string     `json:"id,omitempty"`
	Datasource     string     `json:"datasource"`
	DocID          string     `json:"doc_id,omitempty"`         // ID of the loaded document when relevant
	DocDisplayID   string     `json:"doc_display_id,omitempty"` // Display ID of the document to load
	URI            string     `json:"uri,omitempty"`
	File           string     `json:"file,omitempty"` // file name or path; where to load from when applicable
	UploadFilename string     `json:"upload_filename,omitempty"`
	LoadDirectory  bool       `json:"load_directory,omitempty"`
	ModifiedSince  *time.Time `json:"modified_since,omitempty"`
	ConnectionID   string     `json:"connection_id,omitempty"`
	SyncDeletions  *bool      `json:"sync_deletions,omitempty"` // nil means true
}

// DefaultedSyncDeletions reports whether this job should sync deletions.
// Defaults to true when unspecified.
func (j *Job) DefaultedSyncDeletions() bool {
	if j.SyncDeletions == nil {
		return true
	}
	return *j.SyncDeletions
}

// Persisted reports whether the job has been stored already.
func (j *Job) Persisted() bool {
	return j.ID != ""
}
