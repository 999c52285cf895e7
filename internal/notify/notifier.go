package notify

import (
	"context"
	"time"

	"github.com/nholik/edge-watchdog/internal/limits"
	"github.com/nholik/edge-watchdog/internal/threshold"
	"github.com/nholik/edge-watchdog/internal/usage"
)

// Digest summarizes one evaluation for operators: the alert level, what
// drove it, what is diverted and what failed along the way.
type Digest struct {
	Level              threshold.Level    `json:"level"`
	PreviousLevel      threshold.Level    `json:"previous_level"`
	Usage              usage.Snapshot     `json:"usage"`
	TriggeredResources []limits.Resource  `json:"triggered_resources"`
	DivertedServices   []string           `json:"diverted_services"`
	Errors             []string           `json:"errors"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// Notifier delivers usage digests to external systems.
type Notifier interface {
	Notify(ctx context.Context, digest Digest) error
}
