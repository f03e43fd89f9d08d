// -----------------------------------------------------------------------
// Upload feature - indexing of files submitted through the API
// -----------------------------------------------------------------------

package upload

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/extract"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources"
)

// Datasource is the name this feature serves.
const Datasource = "UPLOAD"

// Feature indexes uploaded files. The file content lives as an attachment
// on the job record; there is no external source, so deletion sync never
// applies.
type Feature struct {
	store  interfaces.JobStore
	logger arbor.ILogger
}

func NewFeature(store interfaces.JobStore, logger arbor.ILogger) *Feature {
	return &Feature{store: store, logger: logger}
}

func (f *Feature) Name() string { return Datasource }

func (f *Feature) AcceptRequest(req *models.JobRequest) bool {
	return req.Datasource == Datasource
}

func (f *Feature) CreateJob(req *models.JobRequest) (*models.Job, error) {
	if req.UploadFilename == "" {
		return nil, fmt.Errorf("upload request carries no file")
	}
	syncOff := false
	return &models.Job{
		Datasource:     Datasource,
		UploadFilename: req.UploadFilename,
		SyncDeletions:  &syncOff,
	}, nil
}

func (f *Feature) AcceptJob(job *models.Job) bool {
	return job.Datasource == Datasource
}

// CreateFirstStep loads the attachment directly; the filename doubles as the
// document ID so re-uploading a file replaces its indexed content.
func (f *Feature) CreateFirstStep(job *models.Job) (*models.JobStep, error) {
	step := models.NewJobStep(models.StepTypeLoad, Datasource)
	step.DocID = job.UploadFilename
	return step, nil
}

func (f *Feature) Handler(job *models.Job, step *models.JobStep) interfaces.StepHandler {
	switch step.Type {
	case models.StepTypeLoad:
		return f.handleLoad
	case models.StepTypeDelete:
		return sources.DeleteHandler
	default:
		return nil
	}
}

func (f *Feature) DeleteDocBy() interfaces.DeleteDocBy {
	return interfaces.DeleteDocByID
}

func (f *Feature) ConnectionLoader() interfaces.ConnectionLoader {
	return nil
}

func (f *Feature) handleLoad(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	att, err := f.store.GetAttachment(job.ID)
	if err != nil {
		return fmt.Errorf("failed to load uploaded file: %w", err)
	}

	text, err := extract.FileText(att.Filename, att.Content, "")
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", att.Filename, err)
	}

	doc := &models.Document{
		Content: text,
		Metadata: models.DocumentMetadata{
			DocID:  att.Filename,
			Source: Datasource + "/" + att.Filename,
			Title:  att.Filename,
		},
	}
	return chain.IndexDocuments(ctx, job, step, []*models.Document{doc})
}
