// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	"github.com/duskport/eventcollector/internal/adapter/httpserver"
)

// Pinger is the minimal interface for a dependency capable of reporting
// liveness via Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the queue and store checks the health endpoint
// reports on. Labels are generalized ("queue", "store") rather than naming
// the concrete backend, since either collaborator is swappable.
func BuildReadinessChecks(queue Pinger, store Pinger) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{
			Name: "queue",
			Run: func(ctx context.Context) error {
				if queue == nil {
					return fmt.Errorf("queue not configured")
				}
				return queue.Ping(ctx)
			},
		},
		{
			Name: "store",
			Run: func(ctx context.Context) error {
				if store == nil {
					return fmt.Errorf("store not configured")
				}
				return store.Ping(ctx)
			},
		},
	}
}
