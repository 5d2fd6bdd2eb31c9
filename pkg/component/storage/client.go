// Package storage defines the lifecycle contract shared by docqa's backing
// stores (PostgreSQL, Redis, Milvus and the object store) and a registry that
// health-checks and closes them together.
package storage

import (
	"context"
	"time"
)

// HealthChecker reports the health of a client; nil means healthy.
type HealthChecker func() error

// Client is implemented by every infrastructure client.
type Client interface {
	// Name returns a short backend identifier such as "postgres".
	Name() string

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error

	// Health returns a health check function.
	Health() HealthChecker
}

// HealthStatus is the result of a single health check.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}
