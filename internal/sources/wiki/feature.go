// -----------------------------------------------------------------------
// Wiki feature - page tree crawl, load and deletion sync
// -----------------------------------------------------------------------

package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/extract"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/sources"
)

// Datasource is the name this feature serves.
const Datasource = "WIKI"

// Feature indexes a wiki page tree. Page IDs change when pages are moved
// between spaces, so documents are keyed by their display ID.
type Feature struct {
	config      *common.WikiConfig
	connections interfaces.ConnectionStore
	reconciler  *sources.Reconciler
	logger      arbor.ILogger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewFeature(config *common.WikiConfig, connections interfaces.ConnectionStore, logger arbor.ILogger) *Feature {
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
		DocDisplayID:  req.DocDisplayID,
		ConnectionID:  req.ConnectionID,
		SyncDeletions: req.SyncDeletions,
	}, nil
}

func (f *Feature) AcceptJob(job *models.Job) bool {
	return job.Datasource == Datasource
}

func (f *Feature) CreateFirstStep(job *models.Job) (*models.JobStep, error) {
	if job.DocDisplayID != "" {
		step := models.NewJobStep(models.StepTypeLoad, Datasource)
		step.DocDisplayID = job.DocDisplayID
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
	return interfaces.DeleteDocByDisplayID
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
			return nil, fmt.Errorf("no wiki connection configured")
		}
		return &models.Connection{
			Datasource: Datasource,
			BaseURL:    f.config.URL,
			Username:   f.config.Username,
			Password:   f.config.Password,
			RootPage:   f.config.RootPage,
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

func (f *Feature) rootPage(conn *models.Connection) (string, error) {
	if conn.RootPage != "" {
		return conn.RootPage, nil
	}
	if f.config.RootPage != "" {
		return f.config.RootPage, nil
	}
	return "", fmt.Errorf("wiki connection defines no root page")
}

// -----------------------------------------------------------------------
// Step handlers
// -----------------------------------------------------------------------

func (f *Feature) handleCrawl(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	root, err := f.rootPage(conn)
	if err != nil {
		return err
	}

	ids, err := f.clientFor(conn).TreePageIDs(ctx, root)
	if err != nil {
		return err
	}
	for _, id := range ids {
		load := models.NewJobStep(models.StepTypeLoad, Datasource)
		load.DocDisplayID = id
		if _, err := chain.QueueStep(job, load); err != nil {
			return err
		}
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Str("root", root).
		Int("pages", len(ids)).
		Msg("Wiki tree crawled")

	if err := chain.QueueSyncDeletionsIfConfigured(job); err != nil {
		return err
	}
	return chain.ExecuteJobSteps(job)
}

func (f *Feature) handleLoad(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	page, err := f.clientFor(conn).GetPage(ctx, step.DocDisplayID)
	if errors.Is(err, ErrPageNotFound) {
		f.logger.Info().
			Str("page_id", step.DocDisplayID).
			Msg("Page gone from wiki, skipping load")
		return nil
	}
	if err != nil {
		return err
	}

	content := extract.HTMLToMarkdown(cleanStorageHTML(page.Body), conn.BaseURL)
	doc := &models.Document{
		Content: content,
		Metadata: models.DocumentMetadata{
			DocID:        page.ID,
			DocDisplayID: step.DocDisplayID,
			Source:       conn.BaseURL,
			Title:        page.Title,
			WebURL:       page.WebURL,
		},
	}
	return chain.IndexDocuments(ctx, job, step, []*models.Document{doc})
}

func (f *Feature) handleSyncDeletions(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	root, err := f.rootPage(conn)
	if err != nil {
		return err
	}

	ids, err := f.clientFor(conn).TreePageIDs(ctx, root)
	if err != nil {
		return err
	}
	published := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		published[id] = struct{}{}
	}
	return f.reconciler.SyncDeletions(ctx, job, chain, f.DeleteDocBy(), published)
}

// cleanStorageHTML strips macro bodies, scripts and styles from the wiki's
// storage format before markdown conversion.
func cleanStorageHTML(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style, ac\\:structured-macro, ri\\:attachment").Remove()
	html, err := doc.Html()
	if err != nil {
		return body
	}
	return html
}
