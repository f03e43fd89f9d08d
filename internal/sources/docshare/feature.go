// -----------------------------------------------------------------------
// Docshare feature - drive crawl, file load and deletion sync
// -----------------------------------------------------------------------

package docshare

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/extract"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources"
)

// Datasource is the name this feature serves.
const Datasource = "DOCSHARE"

// Feature indexes files from a shared document drive.
type Feature struct {
	config      *common.DocshareConfig
	connections interfaces.ConnectionStore
	reconciler  *sources.Reconciler
	logger      arbor.ILogger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewFeature(config *common.DocshareConfig, connections interfaces.ConnectionStore, logger arbor.ILogger) *Feature {
	return &Feature{
		config:      config,
		connections: connections,
		reconciler:  sources.NewReconciler(logger),
		logger:      logger,
		clients:     make(map[string]*Client),
	}
}

func (f *Feature) Name() string { return Datasource }

func (f *Feature) AcceptRequest(req *models.JobRequest) bool {
	return req.Datasource == Datasource
}

func (f *Feature) CreateJob(req *models.JobRequest) (*models.Job, error) {
	return &models.Job{
		Datasource:    Datasource,
		DocID:         req.DocID,
		ModifiedSince: req.ModifiedSince,
		ConnectionID:  req.ConnectionID,
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
	return func(job *models.Job) (*models.Connection, error) {
		if job.ConnectionID != "" {
			return f.connections.GetConnection(job.ConnectionID)
		}
		conn, err := f.connections.GetDefaultConnection(Datasource)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		if f.config.URL == "" {
			return nil, fmt.Errorf("no docshare connection configured")
		}
		return &models.Connection{
			Datasource:   Datasource,
			BaseURL:      f.config.URL,
			TokenURL:     f.config.TokenURL,
			ClientID:     f.config.ClientID,
			ClientSecret: f.config.ClientSecret,
			DriveID:      f.config.DriveID,
		}, nil
	}
}

func (f *Feature) clientFor(conn *models.Connection) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[conn.ID]; ok {
		return client
	}
	client := NewClient(conn, f.logger)
	f.clients[conn.ID] = client
	return client
}

func (f *Feature) driveID(conn *models.Connection) (string, error) {
	if conn.DriveID != "" {
		return conn.DriveID, nil
	}
	if f.config.DriveID != "" {
		return f.config.DriveID, nil
	}
	return "", fmt.Errorf("docshare connection defines no drive")
}

// -----------------------------------------------------------------------
// Step handlers
// -----------------------------------------------------------------------

func (f *Feature) handleCrawl(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	drive, err := f.driveID(conn)
	if err != nil {
		return err
	}
	client := f.clientFor(conn)

	total := 0
	offset := 0
	for {
		items, more, err := client.ListItems(ctx, drive, offset)
		if err != nil {
			return err
		}
		for _, item := range items {
			if skipUnmodified(job, item) {
				continue
			}
			load := models.NewJobStep(models.StepTypeLoad, Datasource)
			load.DocID = item.ID
			load.DocDisplayID = item.Name
			if _, err := chain.QueueStep(job, load); err != nil {
				return err
			}
			total++
		}
		if !more {
			break
		}
		offset += len(items)
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Str("drive", drive).
		Int("files", total).
		Msg("Drive crawled")

	if err := chain.QueueSyncDeletionsIfConfigured(job); err != nil {
		return err
	}
	return chain.ExecuteJobSteps(job)
}

// skipUnmodified narrows an incremental crawl to items changed since the
// job's cutoff. Items with unparseable timestamps are kept.
func skipUnmodified(job *models.Job, item Item) bool {
	if job.ModifiedSince == nil || item.Modified == "" {
		return false
	}
	modified, err := time.Parse(time.RFC3339, item.Modified)
	if err != nil {
		return false
	}
	return modified.Before(*job.ModifiedSince)
}

func (f *Feature) handleLoad(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	drive, err := f.driveID(conn)
	if err != nil {
		return err
	}
	client := f.clientFor(conn)

	item, err := client.GetItem(ctx, drive, step.DocID)
	if errors.Is(err, ErrItemNotFound) {
		f.logger.Info().
			Str("item_id", step.DocID).
			Msg("Item gone from drive, skipping load")
		return nil
	}
	if err != nil {
		return err
	}

	content, err := client.Download(ctx, drive, item.ID)
	if errors.Is(err, ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	text, err := extract.FileText(item.Name, content, conn.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", item.Name, err)
	}

	doc := &models.Document{
		Content: text,
		Metadata: models.DocumentMetadata{
			DocID:        item.ID,
			DocDisplayID: item.Name,
			Source:       conn.BaseURL,
			Title:        item.Name,
			WebURL:       item.WebURL,
		},
	}
	return chain.IndexDocuments(ctx, job, step, []*models.Document{doc})
}

func (f *Feature) handleSyncDeletions(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	drive, err := f.driveID(conn)
	if err != nil {
		return err
	}
	published, err := f.clientFor(conn).AllItemIDs(ctx, drive)
	if err != nil {
		return err
	}
	return f.reconciler.SyncDeletions(ctx, job, chain, f.DeleteDocBy(), published)
}
