package indexing

import (
	"context"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Chain hands step handlers index access on top of the queue's scheduling
// surface. The feature's key mode decides which document key identifies
// existing index content.
type Chain struct {
	interfaces.Chain
	feature interfaces.Feature
	service *Service
}

func NewChain(base interfaces.Chain, feature interfaces.Feature, service *Service) *Chain {
	return &Chain{
		Chain:   base,
		feature: feature,
		service: service,
	}
}

func (c *Chain) IndexDocuments(ctx context.Context, job *models.Job, step *models.JobStep, docs []*models.Document) error {
	return c.service.IndexDocuments(ctx, job, step, docs, c.feature.DeleteDocBy())
}

func (c *Chain) DeleteDocument(ctx context.Context, job *models.Job, step *models.JobStep) error {
	return c.service.DeleteDocument(ctx, job, step, c.feature.DeleteDocBy())
}

func (c *Chain) ScrollIndexedKeys(ctx context.Context, job *models.Job, keyField string, fn func(value string) error) error {
	return c.service.ScrollKeys(ctx, job, keyField, fn)
}
