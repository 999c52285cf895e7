package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest tick timing details.
type Snapshot struct {
	LastTickTime     *time.Time `json:"last_tick_time"`
	TickDurationMS   int64      `json:"tick_duration_ms"`
	DivertedServices int        `json:"diverted_services"`
}

// Tracker records tick timing for health endpoints.
type Tracker struct {
	mu               sync.RWMutex
	lastTick         time.Time
	tickDuration     time.Duration
	divertedServices int
	ready            bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordTick updates tick timing and readiness.
func (t *Tracker) RecordTick(duration time.Duration, divertedServices int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastTick = now
	t.tickDuration = duration
	t.divertedServices = divertedServices
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastTick.IsZero() {
		value := t.lastTick
		last = &value
	}
	return Snapshot{
		LastTickTime:     last,
		TickDurationMS:   int64(t.tickDuration / time.Millisecond),
		DivertedServices: t.divertedServices,
	}
}

// Ready reports whether at least one successful tick has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last tick completed within 2x the poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastTick.IsZero() {
		return false
	}
	return now.Sub(t.lastTick) <= 2*pollInterval
}
