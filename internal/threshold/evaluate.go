package threshold

import (
	"sort"

	"github.com/nholik/edge-watchdog/internal/limits"
	"github.com/nholik/edge-watchdog/internal/usage"
)

// Result is the outcome of one threshold evaluation.
type Result struct {
	Level Level
	// TriggeredResources lists every resource at or above the warning
	// threshold, reported for observability regardless of level.
	TriggeredResources []limits.Resource
	// FailoverTargets lists the services to divert next, in priority order.
	FailoverTargets []string
}

// Evaluate classifies a snapshot and selects failover targets. It is a pure
// function of its inputs: the same snapshot, diverted set and thresholds
// always produce the same result.
//
// At failover severity only the single next service in priority order is
// targeted, to avoid over-reacting to a transient spike. At critical
// severity every remaining service is targeted at once: imminent quota
// exhaustion outweighs the disruption of moving traffic.
func Evaluate(snapshot usage.Snapshot, alreadyDiverted []string, priority []string, warnPct, failPct float64) Result {
	maxPct := snapshot.MaxPct()

	level := LevelNormal
	switch {
	case maxPct >= CriticalPct:
		level = LevelCritical
	case maxPct >= failPct:
		level = LevelFailover
	case maxPct >= warnPct:
		level = LevelWarning
	}

	triggered := make([]limits.Resource, 0)
	for resource, u := range snapshot {
		if u.Pct >= warnPct {
			triggered = append(triggered, resource)
		}
	}
	sort.Slice(triggered, func(i, j int) bool { return triggered[i] < triggered[j] })

	diverted := make(map[string]bool, len(alreadyDiverted))
	for _, name := range alreadyDiverted {
		diverted[name] = true
	}

	remaining := make([]string, 0, len(priority))
	for _, name := range priority {
		if !diverted[name] {
			remaining = append(remaining, name)
		}
	}

	var targets []string
	switch level {
	case LevelCritical:
		targets = remaining
	case LevelFailover:
		if len(remaining) > 0 {
			targets = remaining[:1]
		}
	}

	return Result{
		Level:              level,
		TriggeredResources: triggered,
		FailoverTargets:    targets,
	}
}

// BelowLowWater reports whether every resource sits under the low-water
// mark, making an automatic revert safe.
func BelowLowWater(snapshot usage.Snapshot) bool {
	for _, u := range snapshot {
		if u.Pct >= LowWaterPct {
			return false
		}
	}
	return true
}
