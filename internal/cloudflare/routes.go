package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WorkerRoute is one primary routing entry: a URL pattern served by a named
// worker script.
type WorkerRoute struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	Script  string `json:"script"`
}

// ListWorkerRoutes returns all routes for the zone.
func (c *Client) ListWorkerRoutes(ctx context.Context) ([]WorkerRoute, error) {
	result, err := c.do(ctx, http.MethodGet, "/zones/"+c.zoneID+"/workers/routes", nil)
	if err != nil {
		return nil, err
	}

	var routes []WorkerRoute
	if err := json.Unmarshal(result, &routes); err != nil {
		return nil, fmt.Errorf("decode worker routes: %w", err)
	}
	return routes, nil
}

// CreateWorkerRoute installs a route and returns its identifier.
func (c *Client) CreateWorkerRoute(ctx context.Context, pattern, script string) (string, error) {
	body := map[string]string{"pattern": pattern, "script": script}
	result, err := c.do(ctx, http.MethodPost, "/zones/"+c.zoneID+"/workers/routes", body)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return "", fmt.Errorf("decode created route: %w", err)
	}
	c.logger.Debug().Str("pattern", pattern).Str("script", script).Str("route_id", created.ID).Msg("worker route created")
	return created.ID, nil
}

// DeleteWorkerRoute removes a route by identifier. Returns ErrNotFound when
// the route is already gone.
func (c *Client) DeleteWorkerRoute(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/zones/"+c.zoneID+"/workers/routes/"+id, nil)
	if err != nil {
		return err
	}
	c.logger.Debug().Str("route_id", id).Msg("worker route deleted")
	return nil
}
