package app

import (
	"context"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// pingIndicator adapts a ping function to a readiness indicator.
type pingIndicator struct {
	name string
	ping func(ctx context.Context) error
}

func (p *pingIndicator) Name() string { return p.name }

func (p *pingIndicator) Check(ctx context.Context) interfaces.HealthStatus {
	if err := p.ping(ctx); err != nil {
		return interfaces.HealthDown
	}
	return interfaces.HealthUp
}
