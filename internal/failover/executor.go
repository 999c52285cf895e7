// Package failover performs and reverses service diversions: withdrawing a
// service's primary worker route and installing un-proxied DNS toward the
// secondary environment, with enough recorded to undo the change exactly.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/cloudflare"
	"github.com/nholik/edge-watchdog/internal/config"
	"github.com/nholik/edge-watchdog/internal/state"
)

// RoutingAPI is the subset of platform operations the executors need.
// Narrowed for testability; *cloudflare.Client satisfies it.
type RoutingAPI interface {
	ListWorkerRoutes(ctx context.Context) ([]cloudflare.WorkerRoute, error)
	CreateWorkerRoute(ctx context.Context, pattern, script string) (string, error)
	DeleteWorkerRoute(ctx context.Context, id string) error
	CreateDNSRecord(ctx context.Context, name, target string, proxied bool) (string, error)
	DeleteDNSRecord(ctx context.Context, id string) error
}

var _ RoutingAPI = (*cloudflare.Client)(nil)

// Executor mutates routing and DNS state for diversions and reverts.
type Executor struct {
	logger     zerolog.Logger
	api        RoutingAPI
	catalog    config.Catalog
	zoneName   string
	gcpProject string
	now        func() time.Time
}

// ExecutorOption customizes executor behavior.
type ExecutorOption func(*Executor)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor constructs an Executor over the given platform API and service
// catalog.
func NewExecutor(logger zerolog.Logger, api RoutingAPI, catalog config.Catalog, zoneName, gcpProject string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:     logger,
		api:        api,
		catalog:    catalog,
		zoneName:   zoneName,
		gcpProject: gcpProject,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveTarget returns the secondary-environment hostname for a service:
// the explicit override when registered, else the naming convention
// <service>-<project>.a.run.app.
func (e *Executor) ResolveTarget(service, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if e.gcpProject == "" {
		return "", fmt.Errorf("no secondary target for %q: no override registered and no project configured", service)
	}
	return fmt.Sprintf("%s-%s.a.run.app", service, e.gcpProject), nil
}

// ExecuteFailover diverts one service: deletes its primary route if present
// and installs an un-proxied DNS record pointing the service's subdomain at
// the secondary target. The returned record is sufficient for exact
// reversal. A missing primary route is not an error, so re-running after a
// partial prior failure converges instead of failing.
func (e *Executor) ExecuteFailover(ctx context.Context, service, overrideTarget string) (state.FailoverRecord, error) {
	route, ok := e.catalog.Route(service)
	if !ok {
		return state.FailoverRecord{}, fmt.Errorf("unknown service %q", service)
	}

	target, err := e.ResolveTarget(service, overrideTarget)
	if err != nil {
		return state.FailoverRecord{}, err
	}

	primaryRef, err := e.removePrimaryRoute(ctx, route)
	if err != nil {
		return state.FailoverRecord{}, err
	}

	dnsName := route.Subdomain + "." + e.zoneName
	recordID, err := e.api.CreateDNSRecord(ctx, dnsName, target, false)
	if err != nil {
		return state.FailoverRecord{}, fmt.Errorf("create secondary dns record for %q: %w", service, err)
	}

	record := state.FailoverRecord{
		Service:           service,
		PrimaryRouteRef:   primaryRef,
		SecondaryRouteRef: recordID,
		SecondaryTarget:   target,
		FailedAt:          e.now().UTC(),
	}

	e.logger.Info().
		Str("service", service).
		Str("target", target).
		Str("primary_route", primaryRef).
		Str("dns_record", recordID).
		Msg("service diverted to secondary environment")

	return record, nil
}

// removePrimaryRoute locates the service's primary route by pattern or
// script match and deletes it. Returns the deleted route's identifier, or
// empty when no route was found.
func (e *Executor) removePrimaryRoute(ctx context.Context, route config.ServiceRoute) (string, error) {
	routes, err := e.api.ListWorkerRoutes(ctx)
	if err != nil {
		return "", fmt.Errorf("list worker routes: %w", err)
	}

	var found *cloudflare.WorkerRoute
	for i := range routes {
		if routes[i].Pattern == route.RoutePattern || routes[i].Script == route.Script {
			found = &routes[i]
			break
		}
	}
	if found == nil {
		e.logger.Warn().
			Str("service", route.Name).
			Str("pattern", route.RoutePattern).
			Msg("primary route not found, proceeding without deletion")
		return "", nil
	}

	if err := e.api.DeleteWorkerRoute(ctx, found.ID); err != nil {
		if errors.Is(err, cloudflare.ErrNotFound) {
			return found.ID, nil
		}
		return "", fmt.Errorf("delete primary route %q: %w", found.ID, err)
	}
	return found.ID, nil
}
