package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// displayIDSequenceKey names the badger sequence that backs step display IDs.
// The sequence is monotonic across restarts, so zero-padding keeps the
// rendered IDs in lexicographic order.
const displayIDSequenceKey = "jobstep-display-id"

// attachmentKeyPrefix namespaces attachment records away from step IDs.
const attachmentKeyPrefix = "att:"

// JobStore implements the JobStore interface for Badger
type JobStore struct {
	db     *BadgerDB
	seq    *badgerdb.Sequence
	logger arbor.ILogger
}

// NewJobStore creates a new JobStore instance
func NewJobStore(db *BadgerDB, logger arbor.ILogger) (*JobStore, error) {
	seq, err := db.Store().Badger().GetSequence([]byte(displayIDSequenceKey), 100)
	if err != nil {
		return nil, fmt.Errorf("failed to open display id sequence: %w", err)
	}
	return &JobStore{
		db:     db,
		seq:    seq,
		logger: logger,
	}, nil
}

// Close releases the display-ID sequence lease.
func (s *JobStore) Close() error {
	if s.seq != nil {
		return s.seq.Release()
	}
	return nil
}

func (s *JobStore) StoreJob(job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (s *JobStore) GetJob(id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) StoreStep(step *models.JobStep) error {
	if step.JobID == "" {
		return fmt.Errorf("step has no job ID")
	}
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	if step.DisplayID == "" {
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to assign display id: %w", err)
		}
		step.DisplayID = fmt.Sprintf("%012d", n)
	}
	if err := s.db.Store().Upsert(step.ID, step); err != nil {
		return fmt.Errorf("failed to store step: %w", err)
	}
	return nil
}

func (s *JobStore) GetStep(id string) (*models.JobStep, error) {
	var step models.JobStep
	if err := s.db.Store().Get(id, &step); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("step %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return &step, nil
}

func (s *JobStore) HasSteps(jobID string, stepType models.StepType) (bool, error) {
	count, err := s.db.Store().Count(&models.JobStep{},
		badgerhold.Where("JobID").Eq(jobID).And("Type").Eq(stepType))
	if err != nil {
		return false, fmt.Errorf("failed to count steps: %w", err)
	}
	return count > 0, nil
}

func (s *JobStore) GetPendingSteps(jobID string, limit int, afterDisplayID string) ([]*models.JobStep, error) {
	query := badgerhold.Where("JobID").Eq(jobID).
		And("Status").Eq(models.StepStatusPending).
		And("DisplayID").Gt(afterDisplayID).
		SortBy("DisplayID")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var steps []models.JobStep
	if err := s.db.Store().Find(&steps, query); err != nil {
		return nil, fmt.Errorf("failed to query pending steps: %w", err)
	}

	result := make([]*models.JobStep, len(steps))
	for i := range steps {
		result[i] = &steps[i]
	}
	return result, nil
}

// ClaimStep transitions the step from PENDING to IN_PROGRESS inside one
// badger transaction. The re-read and the write share the transaction, so
// two nodes racing on the same step see exactly one winner.
func (s *JobStore) ClaimStep(stepID string, node string) (*models.JobStep, error) {
	var claimed models.JobStep
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var step models.JobStep
		if err := s.db.Store().TxGet(tx, stepID, &step); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("step %s: %w", stepID, interfaces.ErrNotFound)
			}
			return fmt.Errorf("failed to re-read step: %w", err)
		}
		if step.Status != models.StepStatusPending {
			return fmt.Errorf("step %s is %s: %w", stepID, step.Status, interfaces.ErrClaimConflict)
		}
		step.Status = models.StepStatusInProgress
		step.ExecutingNode = node
		if err := s.db.Store().TxUpdate(tx, stepID, &step); err != nil {
			return fmt.Errorf("failed to claim step: %w", err)
		}
		claimed = step
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *JobStore) UpdateStepStatus(stepID string, status models.StepStatus, errorDetails string) error {
	return s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var step models.JobStep
		if err := s.db.Store().TxGet(tx, stepID, &step); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("step %s: %w", stepID, interfaces.ErrNotFound)
			}
			return fmt.Errorf("failed to read step: %w", err)
		}
		step.Status = status
		// Error details only survive on an ERROR step.
		if status == models.StepStatusError {
			step.ErrorDetails = errorDetails
		} else {
			step.ErrorDetails = ""
		}
		if err := s.db.Store().TxUpdate(tx, stepID, &step); err != nil {
			return fmt.Errorf("failed to update step status: %w", err)
		}
		return nil
	})
}

func (s *JobStore) StoreAttachment(jobID string, att *models.Attachment) error {
	if err := s.db.Store().Upsert(attachmentKeyPrefix+jobID, att); err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}
	return nil
}

func (s *JobStore) GetAttachment(jobID string) (*models.Attachment, error) {
	var att models.Attachment
	if err := s.db.Store().Get(attachmentKeyPrefix+jobID, &att); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("attachment for job %s: %w", jobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}
