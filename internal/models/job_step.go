// -----------------------------------------------------------------------
// JobStep - one atomic action within a Job
// -----------------------------------------------------------------------

package models

import "fmt"

// StepType enumerates the atomic actions a job decomposes into.
type StepType int

const (
	StepTypeCrawl         StepType = 0
	StepTypeLoad          StepType = 1
	StepTypeSyncDeletions StepType = 2
	StepTypeDelete        StepType = 3
)

func (t StepType) String() string {
	switch t {
	case StepTypeCrawl:
		return "CRAWL"
	case StepTypeLoad:
		return "LOAD"
	case StepTypeSyncDeletions:
		return "SYNC_DELETIONS"
	case StepTypeDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("StepType(%d)", int(t))
	}
}

// StepStatus enumerates the lifecycle states of a job step. The numeric
// values are persisted; the gaps leave room for intermediate states.
type StepStatus int

const (
	StepStatusPending    StepStatus = 0
	StepStatusParked     StepStatus = 1000
	StepStatusInProgress StepStatus = 2000
	StepStatusDone       StepStatus = 3000
	StepStatusError      StepStatus = 4000
)

func (s StepStatus) String() string {
	switch s {
	case StepStatusPending:
		return "PENDING"
	case StepStatusParked:
		return "PARKED"
	case StepStatusInProgress:
		return "IN_PROGRESS"
	case StepStatusDone:
		return "DONE"
	case StepStatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("StepStatus(%d)", int(s))
	}
}

// JobStep is an atomic action of a Job. Steps are created by handlers or by
// the feature that accepts the job; their status is mutated only by the job
// queue.
type JobStep struct {
	ID            string     `json:"id,omitempty"`
	DisplayID     string     `json:"display_id,omitempty"` // store-assigned, lexicographically monotonic
	JobID         string     `json:"job_id,omitempty"`
	Type          StepType   `json:"type"`
	Datasource    string     `json:"datasource"`
	Status        StepStatus `json:"status"`
	DocID         string     `json:"doc_id,omitempty"`
	DocDisplayID  string     `json:"doc_display_id,omitempty"`
	ExecutingNode string     `json:"executing_node,omitempty"`
	ErrorDetails  string     `json:"error_details,omitempty"`
}

// NewJobStep creates an unpersisted PENDING step of the given type.
func NewJobStep(stepType StepType, datasource string) *JobStep {
	return &JobStep{
		Type:       stepType,
		Datasource: datasource,
		Status:     StepStatusPending,
	}
}

func (s *JobStep) String() string {
	return fmt.Sprintf("JobStep{id=%s, display_id=%s, job=%s, type=%s, status=%s, doc_id=%s, doc_display_id=%s}",
		s.ID, s.DisplayID, s.JobID, s.Type, s.Status, s.DocID, s.DocDisplayID)
}
