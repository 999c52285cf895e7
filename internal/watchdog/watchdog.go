// Package watchdog runs the monitor-evaluate-act control loop: collect
// usage for the billing month, classify the risk level, divert services in
// priority order when the allowance is threatened, and revert when usage
// subsides or the month rolls over.
package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/healthcheck"
	"github.com/nholik/edge-watchdog/internal/metrics"
	"github.com/nholik/edge-watchdog/internal/notify"
	"github.com/nholik/edge-watchdog/internal/state"
	"github.com/nholik/edge-watchdog/internal/threshold"
	"github.com/nholik/edge-watchdog/internal/usage"
)

// Ticker is the minimal interface needed for driving the watchdog loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Collector builds usage snapshots for the billing window.
type Collector interface {
	Collect(ctx context.Context, monthStart, now time.Time) (usage.Snapshot, []string)
}

// Executor performs and reverses diversions.
type Executor interface {
	ExecuteFailover(ctx context.Context, service, overrideTarget string) (state.FailoverRecord, error)
	ExecuteRevert(ctx context.Context, record state.FailoverRecord) error
	RevertAll(ctx context.Context, routing map[string]state.FailoverRecord) (reverted []string, errs []string)
}

// StandupTrigger fires the monthly-deduplicated provisioning signal.
type StandupTrigger interface {
	TriggerStandup(ctx context.Context, monthStart time.Time) (bool, error)
}

// Watchdog orchestrates the control loop. One tick runs to completion
// before the next; scheduled ticks and admin operations share one mutex so
// the read-modify-persist of the state document never interleaves.
type Watchdog struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	collector     Collector
	executor      Executor
	standup       StandupTrigger
	store         state.Store
	notifier      notify.Notifier
	metricsSink   *metrics.Metrics
	tracker       *healthcheck.Tracker
	priority      []string
	warnPct       float64
	failPct       float64
	dryRun        bool
	now           func() time.Time
	stateMu       sync.Mutex
}

// Option customizes watchdog behavior.
type Option func(*Watchdog)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(w *Watchdog) {
		w.tickerFactory = factory
	}
}

// WithNotifier sets the digest notifier.
func WithNotifier(notifier notify.Notifier) Option {
	return func(w *Watchdog) {
		w.notifier = notifier
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(sink *metrics.Metrics) Option {
	return func(w *Watchdog) {
		w.metricsSink = sink
	}
}

// WithTracker enables tick liveness tracking for health endpoints.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(w *Watchdog) {
		w.tracker = tracker
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		w.now = now
	}
}

// WithDryRun logs intended mutations instead of invoking the executors.
func WithDryRun(dryRun bool) Option {
	return func(w *Watchdog) {
		w.dryRun = dryRun
	}
}

// New constructs a Watchdog.
func New(logger zerolog.Logger, pollInterval time.Duration, collector Collector, executor Executor, standup StandupTrigger, store state.Store, priority []string, warnPct, failPct float64, opts ...Option) *Watchdog {
	w := &Watchdog{
		logger:       logger,
		pollInterval: pollInterval,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		collector: collector,
		executor:  executor,
		standup:   standup,
		store:     store,
		priority:  priority,
		warnPct:   warnPct,
		failPct:   failPct,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MonthStart returns the first instant of t's calendar month, UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Run starts the loop and blocks until the context is canceled. The first
// tick runs immediately.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error().Err(err).Msg("initial tick failed")
	}

	ticker := w.tickerFactory(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watchdog stopped")
			return nil
		case <-ticker.C():
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// RunOnce executes a single orchestration tick.
func (w *Watchdog) RunOnce(ctx context.Context) error {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	start := time.Now()
	doc, err := w.tick(ctx)
	duration := time.Since(start)

	w.metricsSink.ObserveTickDuration(duration)
	if err != nil {
		return err
	}

	w.tracker.RecordTick(duration, len(doc.DivertedServices))
	w.metricsSink.SetLastSuccessfulTickTimestamp(time.Now().UTC())
	w.metricsSink.SetAlertLevel(threshold.Severity(doc.Level))
	w.metricsSink.SetDivertedServices(len(doc.DivertedServices))
	for resource, u := range doc.Usage {
		w.metricsSink.SetResourceUsagePct(string(resource), u.Pct)
	}
	return nil
}

// tick is the state machine of one cycle. The caller holds stateMu.
func (w *Watchdog) tick(ctx context.Context) (state.WatchdogState, error) {
	now := w.now().UTC()
	currentMonth := MonthStart(now)

	doc, err := w.store.Load(ctx)
	if err != nil {
		return state.WatchdogState{}, err
	}
	doc.Normalize()

	// Month rollover with active diversions: revert everything and start
	// the new month clean, skipping usage evaluation this tick.
	if !doc.BillingMonthStart.IsZero() && !doc.BillingMonthStart.Equal(currentMonth) && len(doc.DivertedServices) > 0 {
		return w.rolloverTick(ctx, doc, currentMonth, now)
	}

	doc.BillingMonthStart = currentMonth

	snapshot, collectErrs := w.collector.Collect(ctx, currentMonth, now)
	w.metricsSink.AddUsageQueryErrors(len(collectErrs))
	tickErrs := collectErrs

	// Level is recomputed from fresh data every tick, never carried forward.
	result := threshold.Evaluate(snapshot, doc.DivertedServices, w.priority, w.warnPct, w.failPct)
	previousLevel := doc.Level

	doc.LastCheck = now
	doc.Usage = snapshot
	doc.Level = result.Level

	w.logger.Info().
		Str("level", string(result.Level)).
		Float64("max_pct", snapshot.MaxPct()).
		Strs("failover_targets", result.FailoverTargets).
		Int("diverted", len(doc.DivertedServices)).
		Msg("usage evaluated")

	if result.Level != threshold.LevelNormal && len(doc.DivertedServices) == 0 {
		if _, err := w.standup.TriggerStandup(ctx, currentMonth); err != nil {
			w.logger.Error().Err(err).Msg("standup trigger failed")
			tickErrs = append(tickErrs, "standup trigger failed: "+err.Error())
		}
	}

	for _, service := range result.FailoverTargets {
		if w.dryRun {
			w.logger.Info().Str("service", service).Msg("[DRY-RUN] Would divert service")
			continue
		}
		record, err := w.executor.ExecuteFailover(ctx, service, doc.GCPOverrides[service])
		if err != nil {
			w.logger.Error().Str("service", service).Err(err).Msg("failover failed")
			tickErrs = append(tickErrs, "failover "+service+" failed: "+err.Error())
			w.metricsSink.IncFailovers(service, "failure")
			continue
		}
		if err := doc.AddDiversion(record); err != nil {
			// Evaluate never targets a diverted service, so this indicates
			// a bug; surface it rather than losing the record.
			w.logger.Error().Str("service", service).Err(err).Msg("diversion not recorded")
			tickErrs = append(tickErrs, "diversion "+service+" not recorded: "+err.Error())
			continue
		}
		w.metricsSink.IncFailovers(service, "success")
	}

	if len(doc.DivertedServices) > 0 && threshold.BelowLowWater(snapshot) {
		tickErrs = append(tickErrs, w.revertBelowLowWater(ctx, &doc)...)
	}

	doc.RecordErrors(tickErrs)

	// Failing to persist is the one fatal condition: an unpersisted tick
	// risks repeating or losing diversions on the next run.
	if err := w.store.Save(ctx, doc); err != nil {
		return state.WatchdogState{}, err
	}

	if w.notifier != nil && previousLevel != doc.Level {
		digest := w.buildDigest(doc, previousLevel, result, now)
		if err := w.notifier.Notify(ctx, digest); err != nil {
			w.logger.Error().Err(err).Msg("digest notification failed")
		}
	}

	return doc, nil
}

// rolloverTick reverts all diversions and resets the document for the new
// billing month. No usage evaluation happens on this tick.
func (w *Watchdog) rolloverTick(ctx context.Context, doc state.WatchdogState, currentMonth, now time.Time) (state.WatchdogState, error) {
	w.logger.Info().
		Time("previous_month", doc.BillingMonthStart).
		Time("current_month", currentMonth).
		Strs("diverted", doc.DivertedServices).
		Msg("billing month rolled over, reverting all diversions")

	if w.dryRun {
		w.logger.Info().Msg("[DRY-RUN] Would revert all diversions for month rollover")
		return doc, nil
	}

	reverted, revertErrs := w.executor.RevertAll(ctx, doc.Routing)
	for _, service := range reverted {
		w.metricsSink.IncReverts(service, "success")
	}
	for _, service := range failedReverts(doc.Routing, reverted) {
		w.metricsSink.IncReverts(service, "failure")
	}

	// The month starts clean even if individual reverts failed; failures
	// are kept visible through the error history.
	doc.ClearDiversions()
	doc.BillingMonthStart = currentMonth
	doc.LastCheck = now
	doc.RecordErrors(revertErrs)

	if err := w.store.Save(ctx, doc); err != nil {
		return state.WatchdogState{}, err
	}
	return doc, nil
}

// revertBelowLowWater reverts every diversion once all resources sit under
// the low-water mark. Partial failures leave their records in place for the
// next tick.
func (w *Watchdog) revertBelowLowWater(ctx context.Context, doc *state.WatchdogState) []string {
	w.logger.Info().
		Strs("diverted", doc.DivertedServices).
		Msg("all resources below low-water mark, reverting diversions")

	if w.dryRun {
		w.logger.Info().Msg("[DRY-RUN] Would revert all diversions")
		return nil
	}

	reverted, errs := w.executor.RevertAll(ctx, doc.Routing)
	for _, service := range failedReverts(doc.Routing, reverted) {
		w.metricsSink.IncReverts(service, "failure")
	}
	for _, service := range reverted {
		if err := doc.RemoveDiversion(service); err != nil {
			w.logger.Error().Str("service", service).Err(err).Msg("revert not recorded")
			errs = append(errs, "revert "+service+" not recorded: "+err.Error())
			continue
		}
		w.metricsSink.IncReverts(service, "success")
	}
	return errs
}

func (w *Watchdog) buildDigest(doc state.WatchdogState, previousLevel threshold.Level, result threshold.Result, now time.Time) notify.Digest {
	return notify.Digest{
		Level:              doc.Level,
		PreviousLevel:      previousLevel,
		Usage:              doc.Usage,
		TriggeredResources: result.TriggeredResources,
		DivertedServices:   append([]string(nil), doc.DivertedServices...),
		Errors:             append([]string(nil), doc.LastErrors...),
		GeneratedAt:        now,
	}
}

func failedReverts(routing map[string]state.FailoverRecord, reverted []string) []string {
	ok := make(map[string]bool, len(reverted))
	for _, service := range reverted {
		ok[service] = true
	}
	failed := make([]string, 0)
	for service := range routing {
		if !ok[service] {
			failed = append(failed, service)
		}
	}
	return failed
}
