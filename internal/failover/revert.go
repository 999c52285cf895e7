package failover

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nholik/edge-watchdog/internal/cloudflare"
	"github.com/nholik/edge-watchdog/internal/state"
)

// ExecuteRevert undoes a diversion: deletes the secondary DNS record
// (tolerating "already gone") and recreates the primary route from catalog
// metadata.
func (e *Executor) ExecuteRevert(ctx context.Context, record state.FailoverRecord) error {
	route, ok := e.catalog.Route(record.Service)
	if !ok {
		return fmt.Errorf("unknown service %q", record.Service)
	}

	if record.SecondaryRouteRef != "" {
		if err := e.api.DeleteDNSRecord(ctx, record.SecondaryRouteRef); err != nil && !errors.Is(err, cloudflare.ErrNotFound) {
			return fmt.Errorf("delete secondary dns record %q: %w", record.SecondaryRouteRef, err)
		}
	}

	routeID, err := e.api.CreateWorkerRoute(ctx, route.RoutePattern, route.Script)
	if err != nil {
		return fmt.Errorf("recreate primary route for %q: %w", record.Service, err)
	}

	e.logger.Info().
		Str("service", record.Service).
		Str("pattern", route.RoutePattern).
		Str("route_id", routeID).
		Msg("service reverted to primary platform")

	return nil
}

// RevertAll reverts every recorded diversion independently: one service's
// failure does not block the others. Returns the names reverted and one
// error string per failure.
func (e *Executor) RevertAll(ctx context.Context, routing map[string]state.FailoverRecord) (reverted []string, errs []string) {
	services := make([]string, 0, len(routing))
	for service := range routing {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		if err := e.ExecuteRevert(ctx, routing[service]); err != nil {
			e.logger.Error().Str("service", service).Err(err).Msg("revert failed")
			errs = append(errs, fmt.Sprintf("revert %s failed: %v", service, err))
			continue
		}
		reverted = append(reverted, service)
	}
	return reverted, errs
}
