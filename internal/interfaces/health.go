package interfaces

import "context"

// HealthStatus is the state an indicator reports.
type HealthStatus string

const (
	HealthUp   HealthStatus = "UP"
	HealthDown HealthStatus = "DOWN"
)

// HealthIndicator is one readiness check. Name identifies the component in
// the aggregated readiness response.
type HealthIndicator interface {
	Name() string
	Check(ctx context.Context) HealthStatus
}
