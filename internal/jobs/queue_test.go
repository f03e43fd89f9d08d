package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/worker"
)

// -----------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------

type memoryStore struct {
	mu          sync.Mutex
	jobs        map[string]*models.Job
	steps       map[string]*models.JobStep
	seq         int
	claimErr    error
	attachments map[string]*models.Attachment
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:        make(map[string]*models.Job),
		steps:       make(map[string]*models.JobStep),
		attachments: make(map[string]*models.Attachment),
	}
}

func (m *memoryStore) StoreJob(job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		m.seq++
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memoryStore) GetJob(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
	}
	clone := *job
	return &clone, nil
}

func (m *memoryStore) StoreStep(step *models.JobStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step.ID == "" {
		m.seq++
		step.ID = fmt.Sprintf("step-%d", m.seq)
	}
	if step.DisplayID == "" {
		m.seq++
		step.DisplayID = fmt.Sprintf("%012d", m.seq)
	}
	clone := *step
	m.steps[step.ID] = &clone
	return nil
}

func (m *memoryStore) GetStep(id string) (*models.JobStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[id]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", id, interfaces.ErrNotFound)
	}
	clone := *step
	return &clone, nil
}

func (m *memoryStore) HasSteps(jobID string, stepType models.StepType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.JobID == jobID && s.Type == stepType {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) GetPendingSteps(jobID string, limit int, afterDisplayID string) ([]*models.JobStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.JobStep
	for _, s := range m.steps {
		if s.JobID == jobID && s.Status == models.StepStatusPending && s.DisplayID > afterDisplayID {
			clone := *s
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayID < result[j].DisplayID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memoryStore) ClaimStep(stepID string, node string) (*models.JobStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	step, ok := m.steps[stepID]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, interfaces.ErrNotFound)
	}
	if step.Status != models.StepStatusPending {
		return nil, fmt.Errorf("step %s is %s: %w", stepID, step.Status, interfaces.ErrClaimConflict)
	}
	step.Status = models.StepStatusInProgress
	step.ExecutingNode = node
	clone := *step
	return &clone, nil
}

func (m *memoryStore) UpdateStepStatus(stepID string, status models.StepStatus, errorDetails string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[stepID]
	if !ok {
		return fmt.Errorf("step %s: %w", stepID, interfaces.ErrNotFound)
	}
	step.Status = status
	if status == models.StepStatusError {
		step.ErrorDetails = errorDetails
	} else {
		step.ErrorDetails = ""
	}
	return nil
}

func (m *memoryStore) StoreAttachment(jobID string, att *models.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[jobID] = att
	return nil
}

func (m *memoryStore) GetAttachment(jobID string) (*models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attachments[jobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return att, nil
}

// inlinePool runs tasks synchronously on the submitting goroutine.
type inlinePool struct{}

func (inlinePool) Submit(task worker.Task) bool {
	task(context.Background())
	return true
}

type fakeFeature struct {
	name      string
	handlers  map[models.StepType]interfaces.StepHandler
	deleteBy  interfaces.DeleteDocBy
	loader    interfaces.ConnectionLoader
	firstStep models.StepType
}

func (f *fakeFeature) Name() string { return f.name }

func (f *fakeFeature) AcceptRequest(req *models.JobRequest) bool { return req.Datasource == f.name }

func (f *fakeFeature) CreateJob(req *models.JobRequest) (*models.Job, error) {
	return &models.Job{
		Datasource:    req.Datasource,
		DocID:         req.DocID,
		ConnectionID:  req.ConnectionID,
		SyncDeletions: req.SyncDeletions,
	}, nil
}

func (f *fakeFeature) AcceptJob(job *models.Job) bool { return job.Datasource == f.name }

func (f *fakeFeature) CreateFirstStep(job *models.Job) (*models.JobStep, error) {
	return models.NewJobStep(f.firstStep, job.Datasource), nil
}

func (f *fakeFeature) Handler(job *models.Job, step *models.JobStep) interfaces.StepHandler {
	return f.handlers[step.Type]
}

func (f *fakeFeature) DeleteDocBy() interfaces.DeleteDocBy { return f.deleteBy }

func (f *fakeFeature) ConnectionLoader() interfaces.ConnectionLoader { return f.loader }

type fakeChain struct {
	interfaces.Chain
}

func (fakeChain) IndexDocuments(context.Context, *models.Job, *models.JobStep, []*models.Document) error {
	return nil
}
func (fakeChain) DeleteDocument(context.Context, *models.Job, *models.JobStep) error { return nil }
func (fakeChain) ScrollIndexedKeys(context.Context, *models.Job, string, func(string) error) error {
	return nil
}

func fakeChainFactory(base interfaces.Chain, feature interfaces.Feature) interfaces.IndexingChain {
	return fakeChain{Chain: base}
}

func newTestQueue(store interfaces.JobStore, batchSize int, features ...interfaces.Feature) *Queue {
	logger := arbor.NewLogger()
	registry := NewFeatureRegistry(logger, features...)
	return NewQueue(store, registry, inlinePool{}, fakeChainFactory, logger, "test-node", batchSize)
}

// -----------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------

func TestCreateAndStartJobRunsFirstStep(t *testing.T) {
	store := newMemoryStore()
	var executed []string
	feature := &fakeFeature{
		name:      "KBASE",
		firstStep: models.StepTypeCrawl,
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeCrawl: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				executed = append(executed, step.Type.String())
				return nil
			},
		},
	}
	q := newTestQueue(store, 100, feature)

	job, err := q.CreateAndStartJob(&models.JobRequest{Datasource: "KBASE"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, []string{"CRAWL"}, executed)

	steps, err := store.GetPendingSteps(job.ID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, steps, "the crawl step must be DONE")
}

func TestCreateAndStartJobUnknownDatasource(t *testing.T) {
	q := newTestQueue(newMemoryStore(), 100, &fakeFeature{name: "KBASE"})

	_, err := q.CreateAndStartJob(&models.JobRequest{Datasource: "UNKNOWN"})
	assert.ErrorIs(t, err, ErrNoFeature)
}

func TestBatchedPollingDrainsAllSteps(t *testing.T) {
	store := newMemoryStore()
	var mu sync.Mutex
	var executed []string
	feature := &fakeFeature{
		name: "KBASE",
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeLoad: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				mu.Lock()
				executed = append(executed, step.ID)
				mu.Unlock()
				return nil
			},
		},
	}
	// Batch of 2 with 3 steps forces a poll-more round.
	q := newTestQueue(store, 2, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))
	for i := 0; i < 3; i++ {
		step := models.NewJobStep(models.StepTypeLoad, "KBASE")
		step.JobID = job.ID
		require.NoError(t, store.StoreStep(step))
	}

	require.NoError(t, q.ExecuteJobSteps(job))
	assert.Len(t, executed, 3)

	pending, err := store.GetPendingSteps(job.ID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClaimConflictSkipsStepSilently(t *testing.T) {
	store := newMemoryStore()
	invoked := false
	feature := &fakeFeature{
		name: "KBASE",
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeLoad: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				invoked = true
				return nil
			},
		},
	}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))
	step := models.NewJobStep(models.StepTypeLoad, "KBASE")
	step.JobID = job.ID
	require.NoError(t, store.StoreStep(step))
	require.NoError(t, store.UpdateStepStatus(step.ID, models.StepStatusInProgress, ""))

	q.handleStep(context.Background(), step.ID)
	assert.False(t, invoked)

	got, err := store.GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusInProgress, got.Status)
}

func TestClaimErrorLeavesStepUntouched(t *testing.T) {
	store := newMemoryStore()
	invoked := false
	feature := &fakeFeature{
		name: "KBASE",
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeLoad: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				invoked = true
				return nil
			},
		},
	}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))
	step := models.NewJobStep(models.StepTypeLoad, "KBASE")
	step.JobID = job.ID
	require.NoError(t, store.StoreStep(step))

	store.claimErr = fmt.Errorf("store unreachable")
	q.handleStep(context.Background(), step.ID)
	assert.False(t, invoked)

	store.claimErr = nil
	got, err := store.GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, got.Status, "an unknown claim outcome must leave the step resumable")
}

func TestHandlerErrorMarksStepError(t *testing.T) {
	store := newMemoryStore()
	feature := &fakeFeature{
		name: "KBASE",
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeLoad: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				return fmt.Errorf("source returned 503")
			},
		},
	}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))
	step := models.NewJobStep(models.StepTypeLoad, "KBASE")
	step.JobID = job.ID
	require.NoError(t, store.StoreStep(step))

	q.handleStep(context.Background(), step.ID)

	got, err := store.GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusError, got.Status)
	assert.Contains(t, got.ErrorDetails, "503")
}

func TestMissingHandlerLeavesStepPending(t *testing.T) {
	store := newMemoryStore()
	feature := &fakeFeature{name: "KBASE"}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))
	step := models.NewJobStep(models.StepTypeDelete, "KBASE")
	step.JobID = job.ID
	require.NoError(t, store.StoreStep(step))

	q.handleStep(context.Background(), step.ID)

	// The step is never claimed, so a build that does carry the handler
	// can pick it up later.
	got, err := store.GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, got.Status)
	assert.Empty(t, got.ErrorDetails)
	assert.Empty(t, got.ExecutingNode)
}

func TestConnectionLoaderErrorMarksStepError(t *testing.T) {
	store := newMemoryStore()
	feature := &fakeFeature{
		name: "KBASE",
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeLoad: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				return nil
			},
		},
		loader: func(job *models.Job) (*models.Connection, error) {
			return nil, fmt.Errorf("connection conn-9 missing")
		},
	}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE", ConnectionID: "conn-9"}
	require.NoError(t, store.StoreJob(job))
	step := models.NewJobStep(models.StepTypeLoad, "KBASE")
	step.JobID = job.ID
	require.NoError(t, store.StoreStep(step))

	q.handleStep(context.Background(), step.ID)

	got, err := store.GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusError, got.Status)
	assert.Contains(t, got.ErrorDetails, "conn-9")
}

func TestStartOrResumeJobCreatesFirstStepOnce(t *testing.T) {
	store := newMemoryStore()
	var count int
	feature := &fakeFeature{
		name:      "KBASE",
		firstStep: models.StepTypeCrawl,
		handlers: map[models.StepType]interfaces.StepHandler{
			models.StepTypeCrawl: func(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
				count++
				return nil
			},
		},
	}
	q := newTestQueue(store, 100, feature)

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))

	require.NoError(t, q.StartOrResumeJob(job.ID))
	assert.Equal(t, 1, count)

	// The crawl step is DONE now; a resume must not create another.
	require.NoError(t, q.StartOrResumeJob(job.ID))
	assert.Equal(t, 1, count)
}

func TestQueueStepReturnsStepID(t *testing.T) {
	store := newMemoryStore()
	q := newTestQueue(store, 100, &fakeFeature{name: "KBASE"})

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))

	step := models.NewJobStep(models.StepTypeDelete, "")
	id, err := q.QueueStep(job, step)
	require.NoError(t, err)
	assert.Equal(t, step.ID, id)
	assert.NotEqual(t, job.ID, id)
	assert.Equal(t, "KBASE", step.Datasource)
}

func TestQueueSyncDeletions(t *testing.T) {
	store := newMemoryStore()
	q := newTestQueue(store, 100, &fakeFeature{name: "KBASE"})

	job := &models.Job{Datasource: "KBASE"}
	require.NoError(t, store.StoreJob(job))

	require.NoError(t, q.QueueSyncDeletionsIfConfigured(job))
	has, err := store.HasSteps(job.ID, models.StepTypeSyncDeletions)
	require.NoError(t, err)
	assert.True(t, has)

	// A second call must not enqueue a duplicate.
	require.NoError(t, q.QueueSyncDeletionsIfConfigured(job))
	steps, err := store.GetPendingSteps(job.ID, 0, "")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestQueueSyncDeletionsCarriesJobScope(t *testing.T) {
	store := newMemoryStore()
	q := newTestQueue(store, 100, &fakeFeature{name: "WIKI"})

	job := &models.Job{Datasource: "WIKI", DocDisplayID: "Page-7"}
	require.NoError(t, store.StoreJob(job))

	require.NoError(t, q.QueueSyncDeletionsIfConfigured(job))
	steps, err := store.GetPendingSteps(job.ID, 0, "")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "Page-7", steps[0].DocDisplayID)
	assert.Empty(t, steps[0].DocID)
}

func TestQueueSyncDeletionsOptOut(t *testing.T) {
	store := newMemoryStore()
	q := newTestQueue(store, 100, &fakeFeature{name: "KBASE"})

	off := false
	job := &models.Job{Datasource: "KBASE", SyncDeletions: &off}
	require.NoError(t, store.StoreJob(job))

	require.NoError(t, q.QueueSyncDeletionsIfConfigured(job))
	has, err := store.HasSteps(job.ID, models.StepTypeSyncDeletions)
	require.NoError(t, err)
	assert.False(t, has)
}
