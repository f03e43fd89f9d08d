package kbase

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

type recordingChain struct {
	queuedSteps []*models.JobStep
	indexedDocs []*models.Document
	syncQueued  bool
	executed    bool
}

func (c *recordingChain) QueueStep(job *models.Job, step *models.JobStep) (string, error) {
	step.JobID = job.ID
	c.queuedSteps = append(c.queuedSteps, step)
	return "step-id", nil
}

func (c *recordingChain) QueueSyncDeletionsIfConfigured(job *models.Job) error {
	if job.DefaultedSyncDeletions() {
		c.syncQueued = true
	}
	return nil
}

func (c *recordingChain) ExecuteJobSteps(job *models.Job) error {
	c.executed = true
	return nil
}

func (c *recordingChain) IndexDocuments(ctx context.Context, job *models.Job, step *models.JobStep, docs []*models.Document) error {
	c.indexedDocs = append(c.indexedDocs, docs...)
	return nil
}

func (c *recordingChain) DeleteDocument(context.Context, *models.Job, *models.JobStep) error {
	return nil
}

func (c *recordingChain) ScrollIndexedKeys(context.Context, *models.Job, string, func(string) error) error {
	return nil
}

func newFeatureAgainst(t *testing.T, handler http.HandlerFunc) (*Feature, *models.Connection) {
	t.Helper()
	srv, _ := newArticleServer(t, handler)
	f := NewFeature(&common.KbaseConfig{PageSize: 2}, nil, arbor.NewLogger())
	conn := &models.Connection{
		ID:       "conn-1",
		BaseURL:  srv.URL,
		Username: "svc-user",
		Password: "secret",
	}
	return f, conn
}

func TestCrawlQueuesLoadStepsAndSync(t *testing.T) {
	f, conn := newFeatureAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(articlePage{
			Entries: []Article{
				{ID: "KA-A", DisplayID: "A"},
				{ID: "KA-B", DisplayID: "B"},
			},
			Total: 2,
		})
	})
	chain := &recordingChain{}
	job := &models.Job{ID: "j1", Datasource: Datasource}

	require.NoError(t, f.handleCrawl(context.Background(), job, models.NewJobStep(models.StepTypeCrawl, Datasource), chain, conn))

	require.Len(t, chain.queuedSteps, 2)
	assert.Equal(t, models.StepTypeLoad, chain.queuedSteps[0].Type)
	assert.Equal(t, "KA-A", chain.queuedSteps[0].DocID)
	assert.Equal(t, "KA-B", chain.queuedSteps[1].DocID)
	assert.True(t, chain.syncQueued)
	assert.True(t, chain.executed)
}

func TestCrawlWithNoArticlesStillSyncs(t *testing.T) {
	f, conn := newFeatureAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(articlePage{Total: 0})
	})
	chain := &recordingChain{}
	job := &models.Job{ID: "j1", Datasource: Datasource}

	require.NoError(t, f.handleCrawl(context.Background(), job, models.NewJobStep(models.StepTypeCrawl, Datasource), chain, conn))

	assert.Empty(t, chain.queuedSteps)
	assert.True(t, chain.syncQueued)
	assert.True(t, chain.executed)
}

func TestLoadSkipsMissingAndUnpublished(t *testing.T) {
	responses := map[string]func(w http.ResponseWriter){
		"/api/v1/articles/KA-GONE": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
		},
		"/api/v1/articles/KA-DRAFT": func(w http.ResponseWriter) {
			json.NewEncoder(w).Encode(Article{ID: "KA-DRAFT", Status: "Draft"})
		},
	}
	f, conn := newFeatureAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		respond, ok := responses[r.URL.Path]
		require.True(t, ok, "unexpected path %s", r.URL.Path)
		respond(w)
	})
	chain := &recordingChain{}
	job := &models.Job{ID: "j1", Datasource: Datasource}

	for _, id := range []string{"KA-GONE", "KA-DRAFT"} {
		step := models.NewJobStep(models.StepTypeLoad, Datasource)
		step.DocID = id
		require.NoError(t, f.handleLoad(context.Background(), job, step, chain, conn))
	}
	assert.Empty(t, chain.indexedDocs)
}

func TestLoadIndexesPublishedArticle(t *testing.T) {
	f, conn := newFeatureAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Article{
			ID:        "KA-1",
			DisplayID: "HOWTO-1",
			Title:     "Reset a password",
			Content:   "<p>Open the portal.</p>",
			Language:  "en",
			Status:    StatusPublished,
		})
	})
	chain := &recordingChain{}
	job := &models.Job{ID: "j1", Datasource: Datasource}
	step := models.NewJobStep(models.StepTypeLoad, Datasource)
	step.DocID = "KA-1"

	require.NoError(t, f.handleLoad(context.Background(), job, step, chain, conn))

	require.Len(t, chain.indexedDocs, 1)
	doc := chain.indexedDocs[0]
	assert.Equal(t, "KA-1", doc.Metadata.DocID)
	assert.Equal(t, "HOWTO-1", doc.Metadata.DocDisplayID)
	assert.Equal(t, "Reset a password", doc.Metadata.Title)
	assert.Contains(t, doc.Content, "Open the portal.")
}
