// -----------------------------------------------------------------------
// JobQueue - batched polling execution of job steps
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/worker"
)

// WorkerPool is the submission surface the queue needs. Submissions must not
// block, even from inside a running task.
type WorkerPool interface {
	Submit(task worker.Task) bool
}

// ChainFactory builds the chain handed to a feature's step handlers. The
// base chain is the queue itself; implementations add index access.
type ChainFactory func(base interfaces.Chain, feature interfaces.Feature) interfaces.IndexingChain

// Queue orchestrates job step execution. Pending steps are polled in pages
// of batchSize; each step becomes one pool task, and a full page chains a
// poll-more task so an unbounded step count never floods the backlog in one
// go.
type Queue struct {
	store        interfaces.JobStore
	registry     *FeatureRegistry
	pool         WorkerPool
	chainFactory ChainFactory
	logger       arbor.ILogger
	node         string
	batchSize    int
}

func NewQueue(store interfaces.JobStore, registry *FeatureRegistry, pool WorkerPool, chainFactory ChainFactory, logger arbor.ILogger, node string, batchSize int) *Queue {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Queue{
		store:        store,
		registry:     registry,
		pool:         pool,
		chainFactory: chainFactory,
		logger:       logger,
		node:         node,
		batchSize:    batchSize,
	}
}

// CreateAndStartJob turns a submission into a stored job with its first
// step and schedules execution. Returns the stored job.
func (q *Queue) CreateAndStartJob(req *models.JobRequest) (*models.Job, error) {
	return q.createAndStart(req, nil)
}

// CreateAndStartJobWithAttachment stores the uploaded file under the job
// before execution begins, so the load step always finds it.
func (q *Queue) CreateAndStartJobWithAttachment(req *models.JobRequest, att *models.Attachment) (*models.Job, error) {
	return q.createAndStart(req, att)
}

func (q *Queue) createAndStart(req *models.JobRequest, att *models.Attachment) (*models.Job, error) {
	feature, err := q.registry.ForRequest(req)
	if err != nil {
		return nil, err
	}

	job, err := feature.CreateJob(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := q.store.StoreJob(job); err != nil {
		return nil, err
	}
	if att != nil {
		if err := q.store.StoreAttachment(job.ID, att); err != nil {
			return nil, err
		}
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("datasource", job.Datasource).
		Msg("Job created")

	if err := q.createFirstStep(feature, job); err != nil {
		return nil, err
	}
	if err := q.ExecuteJobSteps(job); err != nil {
		return nil, err
	}
	return job, nil
}

// StartOrResumeJob schedules execution of a stored job. A job without steps
// gets its first step created; a job with steps resumes from whatever is
// still PENDING.
func (q *Queue) StartOrResumeJob(jobID string) error {
	job, err := q.store.GetJob(jobID)
	if err != nil {
		return err
	}

	feature, err := q.registry.ForJob(job)
	if err != nil {
		return err
	}

	has, err := q.hasAnySteps(job.ID)
	if err != nil {
		return err
	}
	if !has {
		if err := q.createFirstStep(feature, job); err != nil {
			return err
		}
	}
	return q.ExecuteJobSteps(job)
}

func (q *Queue) hasAnySteps(jobID string) (bool, error) {
	for _, t := range []models.StepType{models.StepTypeCrawl, models.StepTypeLoad, models.StepTypeSyncDeletions, models.StepTypeDelete} {
		has, err := q.store.HasSteps(jobID, t)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

func (q *Queue) createFirstStep(feature interfaces.Feature, job *models.Job) error {
	step, err := feature.CreateFirstStep(job)
	if err != nil {
		return fmt.Errorf("failed to create first step: %w", err)
	}
	_, err = q.QueueStep(job, step)
	return err
}

// -----------------------------------------------------------------------
// Chain surface (interfaces.Chain)
// -----------------------------------------------------------------------

// QueueStep persists the step under the job and returns the step's own ID.
func (q *Queue) QueueStep(job *models.Job, step *models.JobStep) (string, error) {
	step.JobID = job.ID
	if step.Datasource == "" {
		step.Datasource = job.Datasource
	}
	if err := q.store.StoreStep(step); err != nil {
		return "", err
	}
	q.logger.Debug().
		Str("job_id", job.ID).
		Str("step_id", step.ID).
		Str("type", step.Type.String()).
		Msg("Step queued")
	return step.ID, nil
}

// QueueSyncDeletionsIfConfigured enqueues a SYNC_DELETIONS step unless the
// job opted out or one already exists.
func (q *Queue) QueueSyncDeletionsIfConfigured(job *models.Job) error {
	if !job.DefaultedSyncDeletions() {
		return nil
	}
	has, err := q.store.HasSteps(job.ID, models.StepTypeSyncDeletions)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	step := models.NewJobStep(models.StepTypeSyncDeletions, job.Datasource)
	step.DocID = job.DocID
	step.DocDisplayID = job.DocDisplayID
	_, err = q.QueueStep(job, step)
	return err
}

// ExecuteJobSteps schedules one page of the job's pending steps.
func (q *Queue) ExecuteJobSteps(job *models.Job) error {
	return q.pollAndSubmit(job.ID, "")
}

// pollAndSubmit reads one page of pending steps after the cursor and turns
// each into a pool task. A full page means there may be more, so a poll-more
// task is chained behind the page.
func (q *Queue) pollAndSubmit(jobID string, afterDisplayID string) error {
	steps, err := q.store.GetPendingSteps(jobID, q.batchSize, afterDisplayID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		stepID := step.ID
		q.pool.Submit(func(ctx context.Context) {
			q.handleStep(ctx, stepID)
		})
	}

	if len(steps) == q.batchSize {
		cursor := steps[len(steps)-1].DisplayID
		q.pool.Submit(func(ctx context.Context) {
			if err := q.pollAndSubmit(jobID, cursor); err != nil {
				q.logger.Error().
					Err(err).
					Str("job_id", jobID).
					Msg("Failed to poll more steps")
			}
		})
	}

	q.logger.Debug().
		Str("job_id", jobID).
		Int("submitted", len(steps)).
		Str("after", afterDisplayID).
		Msg("Pending steps submitted")
	return nil
}

// -----------------------------------------------------------------------
// Step execution
// -----------------------------------------------------------------------

// handleStep claims and runs one step. Indexing is idempotent, so claiming
// is best effort: a lost race is skipped silently, an unknown claim outcome
// is skipped with a warning and the step stays untouched for a later resume.
func (q *Queue) handleStep(ctx context.Context, stepID string) {
	step, err := q.store.GetStep(stepID)
	if err != nil {
		q.logger.Warn().Err(err).Str("step_id", stepID).Msg("Failed to load step")
		return
	}
	job, err := q.store.GetJob(step.JobID)
	if err != nil {
		q.logger.Warn().Err(err).Str("step_id", stepID).Msg("Failed to load job for step")
		return
	}

	feature, err := q.registry.ForJob(job)
	if err != nil {
		q.logger.Error().Err(err).Str("step_id", stepID).Msg("No feature for step")
		return
	}

	// Resolved before claiming so a step type this build cannot run stays
	// PENDING for a deployment that can.
	handler := feature.Handler(job, step)
	if handler == nil {
		q.logger.Warn().
			Str("step_id", stepID).
			Str("type", step.Type.String()).
			Str("datasource", step.Datasource).
			Msg("No handler for step type, leaving step pending")
		return
	}

	claimed, err := q.store.ClaimStep(stepID, q.node)
	if errors.Is(err, interfaces.ErrClaimConflict) {
		q.logger.Debug().
			Str("step_id", stepID).
			Msg("Step claimed elsewhere, skipping")
		return
	}
	if err != nil {
		q.logger.Warn().
			Err(err).
			Str("step_id", stepID).
			Msg("Claim outcome unknown, skipping step")
		return
	}

	q.logger.Info().
		Str("step_id", claimed.ID).
		Str("job_id", job.ID).
		Str("type", claimed.Type.String()).
		Str("datasource", claimed.Datasource).
		Msg("Executing step")

	if err := q.runStep(ctx, feature, handler, job, claimed); err != nil {
		q.logger.Error().
			Err(err).
			Str("step_id", claimed.ID).
			Str("job_id", job.ID).
			Msg("Step failed")
		if uerr := q.store.UpdateStepStatus(claimed.ID, models.StepStatusError, err.Error()); uerr != nil {
			q.logger.Error().Err(uerr).Str("step_id", claimed.ID).Msg("Failed to mark step ERROR")
		}
		return
	}

	if err := q.store.UpdateStepStatus(claimed.ID, models.StepStatusDone, ""); err != nil {
		q.logger.Error().Err(err).Str("step_id", claimed.ID).Msg("Failed to mark step DONE")
		return
	}
	q.logger.Info().
		Str("step_id", claimed.ID).
		Str("job_id", job.ID).
		Msg("Step completed")
}

func (q *Queue) runStep(ctx context.Context, feature interfaces.Feature, handler interfaces.StepHandler, job *models.Job, step *models.JobStep) error {
	var conn *models.Connection
	if loader := feature.ConnectionLoader(); loader != nil {
		var err error
		conn, err = loader(job)
		if err != nil {
			return fmt.Errorf("failed to load connection: %w", err)
		}
	}

	chain := q.chainFactory(q, feature)
	return handler(ctx, job, step, chain, conn)
}
