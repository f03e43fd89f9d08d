// -----------------------------------------------------------------------
// Core job orchestration interfaces
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrClaimConflict is returned by ClaimStep when the step is no longer
// PENDING. The caller must skip the step silently.
var ErrClaimConflict = errors.New("step already claimed")

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// JobStore persists jobs, their steps and uploaded attachments.
type JobStore interface {
	// StoreJob persists the job, assigning an ID when absent.
	StoreJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)

	// StoreStep persists the step, assigning an ID and a lexicographically
	// monotonic DisplayID when absent.
	StoreStep(step *models.JobStep) error
	GetStep(id string) (*models.JobStep, error)

	// HasSteps reports whether the job has at least one step of the type.
	HasSteps(jobID string, stepType models.StepType) (bool, error)

	// GetPendingSteps returns up to limit PENDING steps of the job with
	// DisplayID greater than afterDisplayID, ordered by DisplayID. Pass an
	// empty cursor for the first page.
	GetPendingSteps(jobID string, limit int, afterDisplayID string) ([]*models.JobStep, error)

	// ClaimStep re-reads the step and atomically moves it from PENDING to
	// IN_PROGRESS, recording the executing node. Returns ErrClaimConflict
	// when the step is not PENDING anymore; any other error indicates the
	// claim outcome is unknown.
	ClaimStep(stepID string, node string) (*models.JobStep, error)

	// UpdateStepStatus sets the step status. A non-empty errorDetails is
	// recorded with ERROR; transitioning elsewhere clears prior details.
	UpdateStepStatus(stepID string, status models.StepStatus, errorDetails string) error

	StoreAttachment(jobID string, att *models.Attachment) error
	GetAttachment(jobID string) (*models.Attachment, error)
}

// ConnectionStore resolves connection records for datasources.
type ConnectionStore interface {
	StoreConnection(conn *models.Connection) error
	GetConnection(id string) (*models.Connection, error)
	GetDefaultConnection(datasource string) (*models.Connection, error)
}

// DeleteDocBy selects which document key field identifies index entries
// belonging to a step when deleting before re-insertion.
type DeleteDocBy int

const (
	DeleteDocByID DeleteDocBy = iota
	DeleteDocByDisplayID
)

// PickKeyForDelete returns the metadata field name and the step value used
// to delete a step's documents from the index.
func (d DeleteDocBy) PickKeyForDelete(step *models.JobStep) (field, value string) {
	if d == DeleteDocByDisplayID {
		return "metadata.doc_display_id", step.DocDisplayID
	}
	return "metadata.doc_id", step.DocID
}

// StepHandler executes one step of a job, using the chain for any further
// orchestration and the connection for source access. Returning an error
// marks the step ERROR; returning nil marks it DONE.
type StepHandler func(ctx context.Context, job *models.Job, step *models.JobStep, chain IndexingChain, conn *models.Connection) error

// ConnectionLoader resolves the connection a job runs against. A nil loader
// means the feature's handlers run without a connection.
type ConnectionLoader func(job *models.Job) (*models.Connection, error)

// Feature is one datasource integration. The registry asks each feature in
// order; the first one accepting a request or job owns it.
type Feature interface {
	// Name returns the datasource identifier the feature serves.
	Name() string

	// AcceptRequest reports whether the feature owns the submission.
	AcceptRequest(req *models.JobRequest) bool

	// CreateJob builds the job for an accepted request.
	CreateJob(req *models.JobRequest) (*models.Job, error)

	// AcceptJob reports whether the feature owns the stored job.
	AcceptJob(job *models.Job) bool

	// CreateFirstStep builds the initial step for an accepted job.
	CreateFirstStep(job *models.Job) (*models.JobStep, error)

	// Handler returns the handler for the step, or nil when the feature
	// has no handler for the step type.
	Handler(job *models.Job, step *models.JobStep) StepHandler

	// DeleteDocBy returns the key mode used to delete the step's documents.
	DeleteDocBy() DeleteDocBy

	// ConnectionLoader returns the loader for this feature, or nil.
	ConnectionLoader() ConnectionLoader
}

// Chain is the orchestration surface handed to step handlers. It lets a
// handler enqueue follow-up steps and resume execution without touching the
// queue internals.
type Chain interface {
	// QueueStep persists the step under the job and returns the step ID.
	QueueStep(job *models.Job, step *models.JobStep) (string, error)

	// QueueSyncDeletionsIfConfigured enqueues a SYNC_DELETIONS step unless
	// the job opts out or one exists already.
	QueueSyncDeletionsIfConfigured(job *models.Job) error

	// ExecuteJobSteps schedules execution of the job's pending steps.
	ExecuteJobSteps(job *models.Job) error
}

// IndexingChain extends the orchestration surface with index access for
// handlers that load or delete documents.
type IndexingChain interface {
	Chain

	// IndexDocuments chunks, embeds and stores the documents, replacing any
	// previously indexed content of the same documents.
	IndexDocuments(ctx context.Context, job *models.Job, step *models.JobStep, docs []*models.Document) error

	// DeleteDocument removes the step's document from the index. A missing
	// index is not an error.
	DeleteDocument(ctx context.Context, job *models.Job, step *models.JobStep) error

	// ScrollIndexedKeys streams the key-field values of all indexed chunks
	// of the job's datasource and connection. Used for deletion sync.
	ScrollIndexedKeys(ctx context.Context, job *models.Job, keyField string, fn func(value string) error) error
}
