package watchdog

import (
	"context"
	"errors"
	"fmt"

	"github.com/nholik/edge-watchdog/internal/notify"
	"github.com/nholik/edge-watchdog/internal/state"
	"github.com/nholik/edge-watchdog/internal/threshold"
)

// Typed errors for the admin surface, so conflicts are distinguishable from
// plain failures and never silently no-op'd.
var (
	ErrUnknownService  = errors.New("unknown service")
	ErrAlreadyDiverted = errors.New("service already diverted")
	ErrNotDiverted     = errors.New("service not diverted")
	ErrDryRun          = errors.New("dry-run mode enabled, mutation rejected")
)

// Status returns the current persisted document.
func (w *Watchdog) Status(ctx context.Context) (state.WatchdogState, error) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	doc, err := w.store.Load(ctx)
	if err != nil {
		return state.WatchdogState{}, err
	}
	doc.Normalize()
	return doc, nil
}

// ManualFailover diverts one service on operator request. Rejects unknown
// and already-diverted services.
func (w *Watchdog) ManualFailover(ctx context.Context, service string) (state.FailoverRecord, error) {
	if !w.knownService(service) {
		return state.FailoverRecord{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if w.dryRun {
		return state.FailoverRecord{}, ErrDryRun
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	doc, err := w.store.Load(ctx)
	if err != nil {
		return state.FailoverRecord{}, err
	}
	doc.Normalize()

	if doc.IsDiverted(service) {
		return state.FailoverRecord{}, fmt.Errorf("%w: %q", ErrAlreadyDiverted, service)
	}

	record, err := w.executor.ExecuteFailover(ctx, service, doc.GCPOverrides[service])
	if err != nil {
		w.metricsSink.IncFailovers(service, "failure")
		return state.FailoverRecord{}, err
	}
	if err := doc.AddDiversion(record); err != nil {
		return state.FailoverRecord{}, err
	}
	w.metricsSink.IncFailovers(service, "success")

	if err := w.store.Save(ctx, doc); err != nil {
		return state.FailoverRecord{}, err
	}
	return record, nil
}

// ManualRevert reverts one service on operator request. Rejects services
// without an active diversion.
func (w *Watchdog) ManualRevert(ctx context.Context, service string) error {
	if !w.knownService(service) {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if w.dryRun {
		return ErrDryRun
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	doc, err := w.store.Load(ctx)
	if err != nil {
		return err
	}
	doc.Normalize()

	record, ok := doc.Routing[service]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotDiverted, service)
	}

	if err := w.executor.ExecuteRevert(ctx, record); err != nil {
		w.metricsSink.IncReverts(service, "failure")
		return err
	}
	if err := doc.RemoveDiversion(service); err != nil {
		return err
	}
	w.metricsSink.IncReverts(service, "success")

	return w.store.Save(ctx, doc)
}

// ManualRevertAll reverts every active diversion and returns the service
// names actually reverted.
func (w *Watchdog) ManualRevertAll(ctx context.Context) ([]string, error) {
	if w.dryRun {
		return nil, ErrDryRun
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	doc, err := w.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	doc.Normalize()

	reverted, errs := w.executor.RevertAll(ctx, doc.Routing)
	for _, service := range failedReverts(doc.Routing, reverted) {
		w.metricsSink.IncReverts(service, "failure")
	}
	for _, service := range reverted {
		if err := doc.RemoveDiversion(service); err != nil {
			errs = append(errs, "revert "+service+" not recorded: "+err.Error())
			continue
		}
		w.metricsSink.IncReverts(service, "success")
	}
	if len(doc.DivertedServices) == 0 {
		doc.Level = threshold.LevelNormal
	}
	doc.RecordErrors(errs)

	if err := w.store.Save(ctx, doc); err != nil {
		return reverted, err
	}
	if len(errs) > 0 {
		return reverted, fmt.Errorf("some reverts failed: %d of %d", len(errs), len(errs)+len(reverted))
	}
	return reverted, nil
}

// RegisterOverride stores an explicit secondary-environment target for a
// service, used in preference to the naming convention.
func (w *Watchdog) RegisterOverride(ctx context.Context, service, url string) error {
	if !w.knownService(service) {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	doc, err := w.store.Load(ctx)
	if err != nil {
		return err
	}
	doc.Normalize()
	doc.GCPOverrides[service] = url
	return w.store.Save(ctx, doc)
}

// SendDigest delivers a digest of the current state on operator request.
func (w *Watchdog) SendDigest(ctx context.Context) error {
	if w.notifier == nil {
		return errors.New("no notifier configured")
	}

	doc, err := w.Status(ctx)
	if err != nil {
		return err
	}

	result := threshold.Evaluate(doc.Usage, doc.DivertedServices, w.priority, w.warnPct, w.failPct)
	digest := notify.Digest{
		Level:              doc.Level,
		PreviousLevel:      doc.Level,
		Usage:              doc.Usage,
		TriggeredResources: result.TriggeredResources,
		DivertedServices:   append([]string(nil), doc.DivertedServices...),
		Errors:             append([]string(nil), doc.LastErrors...),
		GeneratedAt:        w.now().UTC(),
	}
	return w.notifier.Notify(ctx, digest)
}

func (w *Watchdog) knownService(service string) bool {
	for _, name := range w.priority {
		if name == service {
			return true
		}
	}
	return false
}
