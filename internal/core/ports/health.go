package ports

import "context"

// HealthChecker probes one backing dependency for the health endpoint.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in the health report ("redis", ...).
	Name() string
}
