// -----------------------------------------------------------------------
// Localfs feature - crawl and index files from a local directory
// -----------------------------------------------------------------------

package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/extract"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources"
)

// Datasource is the name this feature serves.
const Datasource = "LOCALFS"

// Feature indexes files below a directory. Document IDs are the paths
// relative to the crawl root, so re-crawls and deletion sync line up.
type Feature struct {
	config     *common.LocalFSConfig
	reconciler *sources.Reconciler
	logger     arbor.ILogger
}

func NewFeature(config *common.LocalFSConfig, logger arbor.ILogger) *Feature {
	return &Feature{
		config:     config,
		reconciler: sources.NewReconciler(logger),
		logger:     logger,
	}
}

func (f *Feature) Name() string { return Datasource }

func (f *Feature) AcceptRequest(req *models.JobRequest) bool {
	return req.Datasource == Datasource
}

func (f *Feature) CreateJob(req *models.JobRequest) (*models.Job, error) {
	return &models.Job{
		Datasource:    Datasource,
		URI:           req.URI,
		DocID:         req.DocID,
		LoadDirectory: req.LoadDirectory,
		SyncDeletions: req.SyncDeletions,
	}, nil
}

func (f *Feature) AcceptJob(job *models.Job) bool {
	return job.Datasource == Datasource
}

func (f *Feature) CreateFirstStep(job *models.Job) (*models.JobStep, error) {
	if job.DocID != "" {
		step := models.NewJobStep(models.StepTypeLoad, Datasource)
		step.DocID = job.DocID
		return step, nil
	}
	// A URI naming a single file becomes one LOAD step unless the job asked
	// for a directory crawl.
	if job.URI != "" && !job.LoadDirectory {
		info, err := os.Stat(job.URI)
		if err == nil && !info.IsDir() {
			step := models.NewJobStep(models.StepTypeLoad, Datasource)
			step.DocID = filepath.Base(job.URI)
			return step, nil
		}
	}
	return models.NewJobStep(models.StepTypeCrawl, Datasource), nil
}

func (f *Feature) Handler(job *models.Job, step *models.JobStep) interfaces.StepHandler {
	switch step.Type {
	case models.StepTypeCrawl:
		return f.handleCrawl
	case models.StepTypeLoad:
		return f.handleLoad
	case models.StepTypeSyncDeletions:
		return f.handleSyncDeletions
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

// rootDir returns the crawl root for the job. A job URI overrides the
// configured directory; a URI naming a file resolves to its directory.
func (f *Feature) rootDir(job *models.Job) (string, error) {
	root := job.URI
	if root == "" {
		root = f.config.Dir
	}
	if root == "" {
		return "", fmt.Errorf("no directory configured for filesystem crawl")
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		root = filepath.Dir(root)
	}
	return root, nil
}

func (f *Feature) matches(name string) bool {
	if len(f.config.Patterns) == 0 {
		return true
	}
	for _, suffix := range f.config.Patterns {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// walkFiles returns the matching file paths below root, relative to root.
func (f *Feature) walkFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !f.matches(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// -----------------------------------------------------------------------
// Step handlers
// -----------------------------------------------------------------------

func (f *Feature) handleCrawl(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	root, err := f.rootDir(job)
	if err != nil {
		return err
	}

	files, err := f.walkFiles(root)
	if err != nil {
		return err
	}
	for _, rel := range files {
		load := models.NewJobStep(models.StepTypeLoad, Datasource)
		load.DocID = rel
		load.DocDisplayID = filepath.Base(rel)
		if _, err := chain.QueueStep(job, load); err != nil {
			return err
		}
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Str("root", root).
		Int("files", len(files)).
		Msg("Directory crawled")

	if err := chain.QueueSyncDeletionsIfConfigured(job); err != nil {
		return err
	}
	return chain.ExecuteJobSteps(job)
}

func (f *Feature) handleLoad(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	root, err := f.rootDir(job)
	if err != nil {
		return err
	}

	path := filepath.Join(root, filepath.FromSlash(step.DocID))
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		f.logger.Info().
			Str("path", path).
			Msg("File gone from disk, skipping load")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := extract.FileText(path, content, "")
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", path, err)
	}

	doc := &models.Document{
		Content: text,
		Metadata: models.DocumentMetadata{
			DocID:        step.DocID,
			DocDisplayID: filepath.Base(path),
			Source:       root,
			Title:        filepath.Base(path),
		},
	}
	return chain.IndexDocuments(ctx, job, step, []*models.Document{doc})
}

func (f *Feature) handleSyncDeletions(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	root, err := f.rootDir(job)
	if err != nil {
		return err
	}

	files, err := f.walkFiles(root)
	if err != nil {
		return err
	}
	published := make(map[string]struct{}, len(files))
	for _, rel := range files {
		published[rel] = struct{}{}
	}
	return f.reconciler.SyncDeletions(ctx, job, chain, f.DeleteDocBy(), published)
}
