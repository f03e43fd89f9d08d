// -----------------------------------------------------------------------
// Deletion reconciler - removes index entries the source no longer has
// -----------------------------------------------------------------------

package sources

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Reconciler diffs the keys the source still publishes against the keys
// present in the index and enqueues a DELETE step for every stale one.
type Reconciler struct {
	logger arbor.ILogger
}

func NewReconciler(logger arbor.ILogger) *Reconciler {
	return &Reconciler{logger: logger}
}

// SyncDeletions enqueues DELETE steps for indexed documents missing from
// published and schedules their execution. When the job targets a single
// document, reconciliation is narrowed to that document's key.
func (r *Reconciler) SyncDeletions(ctx context.Context, job *models.Job, chain interfaces.IndexingChain, deleteBy interfaces.DeleteDocBy, published map[string]struct{}) error {
	keyField := "metadata.doc_id"
	if deleteBy == interfaces.DeleteDocByDisplayID {
		keyField = "metadata.doc_display_id"
	}
	narrow := job.DocID
	if narrow == "" {
		narrow = job.DocDisplayID
	}

	queued := make(map[string]struct{})
	err := chain.ScrollIndexedKeys(ctx, job, keyField, func(value string) error {
		if narrow != "" && value != narrow {
			return nil
		}
		if _, ok := published[value]; ok {
			return nil
		}
		if _, ok := queued[value]; ok {
			return nil
		}
		queued[value] = struct{}{}

		step := models.NewJobStep(models.StepTypeDelete, job.Datasource)
		if deleteBy == interfaces.DeleteDocByDisplayID {
			step.DocDisplayID = value
		} else {
			step.DocID = value
		}
		_, err := chain.QueueStep(job, step)
		return err
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Int("published", len(published)).
		Int("stale", len(queued)).
		Msg("Deletion sync reconciled")

	if len(queued) == 0 {
		return nil
	}
	return chain.ExecuteJobSteps(job)
}

// DeleteHandler is the shared DELETE step handler. All built-in features
// delete through the chain so the key mode stays with the feature.
func DeleteHandler(ctx context.Context, job *models.Job, step *models.JobStep, chain interfaces.IndexingChain, conn *models.Connection) error {
	return chain.DeleteDocument(ctx, job, step)
}
