package usage

import (
	"github.com/nholik/edge-watchdog/internal/limits"
)

// ResourceUsage captures one resource's consumption against its monthly
// allowance.
type ResourceUsage struct {
	Current int64   `json:"current"`
	Limit   int64   `json:"limit"`
	Pct     float64 `json:"pct"`
}

// Snapshot maps every tracked resource to its usage. A snapshot is always
// fully populated: a failed query contributes a zero entry, never a missing
// one, so evaluation does not special-case partial data.
type Snapshot map[limits.Resource]ResourceUsage

// NewResourceUsage computes the percentage for a consumption/allowance pair.
// Negative counts are clamped to zero.
func NewResourceUsage(current, limit int64) ResourceUsage {
	if current < 0 {
		current = 0
	}
	return ResourceUsage{
		Current: current,
		Limit:   limit,
		Pct:     100 * float64(current) / float64(limit),
	}
}

// ZeroSnapshot returns a snapshot with a zero entry per tracked resource.
func ZeroSnapshot(table limits.Table) Snapshot {
	snapshot := make(Snapshot, len(table))
	for resource, limit := range table {
		snapshot[resource] = NewResourceUsage(0, limit)
	}
	return snapshot
}

// MaxPct returns the worst-case utilization percentage across the snapshot.
func (s Snapshot) MaxPct() float64 {
	max := 0.0
	for _, u := range s {
		if u.Pct > max {
			max = u.Pct
		}
	}
	return max
}
