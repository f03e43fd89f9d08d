// -----------------------------------------------------------------------
// Kbase feature - crawl, load and deletion sync for knowledge articles
// -----------------------------------------------------------------------

package kbase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/extract"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources"
)

// Datasource is the name this feature serves.
const Datasource = "KBASE"

// Feature indexes knowledge articles. Articles are addressed by their
// stable ID, so deletion uses the doc_id key.
type Feature struct {
	config      *common.KbaseConfig
	connections interfaces.ConnectionStore
	reconciler  *sources.Reconciler
	logger      arbor.ILogger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewFeature(config *common.KbaseConfig, connections interfaces.ConnectionStore, logger arbor.ILogger) *Feature {
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

// CreateFirstStep starts a single-article job at LOAD and a full ingestion
// at CRAWL.
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

// ConnectionLoader resolves the job's connection, falling back to the
// datasource default and finally to the static configuration.
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
			return nil, fmt.Errorf("no kbase connection configured")
		}
		return &models.Connection{
			Datasource: Datasource,
			BaseURL:    f.config.URL,
			Username:   f.config.Username,
			Password:   f.config.Password,
		}, nil
	}
}

// clientFor caches one client per connection so the auth token survives
// across steps.
func (f *Feature) clientFor(conn *models.Connection) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[conn.ID]; ok {
		return client
	}
	client := NewClient(conn, f.config.PageSize, f.logger)
	f.clients[conn.ID] = client
	return client
}

// -----------------------------------------------------------------------
// Step handlers
// -----------------------------------------------------------------------

func (f *Feature) handleCrawl(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	client := f.clientFor(conn)

	total := 0
	offset := 0
	for {
		articles, more, err := client.ListArticles(ctx, job.ModifiedSince, offset)
		if err != nil {
			return err
		}
		for _, article := range articles {
			load := models.NewJobStep(models.StepTypeLoad, Datasource)
			load.DocID = article.ID
			load.DocDisplayID = article.DisplayID
			if _, err := chain.QueueStep(job, load); err != nil {
				return err
			}
			total++
		}
		if !more {
			break
		}
		offset += len(articles)
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Int("articles", total).
		Msg("Knowledge base crawled")

	if err := chain.QueueSyncDeletionsIfConfigured(job); err != nil {
		return err
	}
	return chain.ExecuteJobSteps(job)
}

func (f *Feature) handleLoad(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	client := f.clientFor(conn)

	article, err := client.GetArticle(ctx, step.DocID)
	if errors.Is(err, ErrArticleNotFound) {
		f.logger.Info().
			Str("article_id", step.DocID).
			Msg("Article gone from source, skipping load")
		return nil
	}
	if err != nil {
		return err
	}
	if article.Status != StatusPublished {
		f.logger.Info().
			Str("article_id", article.ID).
			Str("status", article.Status).
			Msg("Article not published, skipping")
		return nil
	}

	internal := article.Internal
	doc := &models.Document{
		Content: extract.HTMLToMarkdown(article.Content, conn.BaseURL),
		Metadata: models.DocumentMetadata{
			DocID:        article.ID,
			DocDisplayID: article.DisplayID,
			Source:       conn.BaseURL,
			Title:        article.Title,
			Language:     article.Language,
			Internal:     &internal,
			Company:      article.Company,
			WebURL:       article.WebURL,
		},
	}
	return chain.IndexDocuments(ctx, job, step, []*models.Document{doc})
}

func (f *Feature) handleSyncDeletions(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	client := f.clientFor(conn)

	published, err := client.PublishedIDs(ctx)
	if err != nil {
		return err
	}
	return f.reconciler.SyncDeletions(ctx, job, chain, f.DeleteDocBy(), published)
}
