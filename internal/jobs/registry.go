package jobs

import (
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ErrNoFeature is returned when no registered feature accepts a request or
// job.
var ErrNoFeature = errors.New("no feature accepts this work")

// FeatureRegistry holds the datasource features in registration order. The
// first feature accepting a request or job owns it; later features are not
// consulted.
type FeatureRegistry struct {
	features []interfaces.Feature
	logger   arbor.ILogger
}

func NewFeatureRegistry(logger arbor.ILogger, features ...interfaces.Feature) *FeatureRegistry {
	r := &FeatureRegistry{logger: logger}
	for _, f := range features {
		r.Register(f)
	}
	return r
}

// Register appends a feature to the acceptance order.
func (r *FeatureRegistry) Register(f interfaces.Feature) {
	r.features = append(r.features, f)
	r.logger.Info().
		Str("feature", f.Name()).
		Msg("Feature registered")
}

// ForRequest returns the first feature accepting the request.
func (r *FeatureRegistry) ForRequest(req *models.JobRequest) (interfaces.Feature, error) {
	for _, f := range r.features {
		if f.AcceptRequest(req) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("request for datasource %q: %w", req.Datasource, ErrNoFeature)
}

// ForJob returns the first feature accepting the stored job.
func (r *FeatureRegistry) ForJob(job *models.Job) (interfaces.Feature, error) {
	for _, f := range r.features {
		if f.AcceptJob(job) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("job %s for datasource %q: %w", job.ID, job.Datasource, ErrNoFeature)
}

// Features returns the registered features in acceptance order.
func (r *FeatureRegistry) Features() []interfaces.Feature {
	return r.features
}
