package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nholik/edge-watchdog/internal/limits"
)

// QueryUsage returns the aggregate count for one metered resource over the
// given window.
func (c *Client) QueryUsage(ctx context.Context, resource limits.Resource, since, until time.Time) (int64, error) {
	query := url.Values{}
	query.Set("metric", string(resource))
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("until", until.UTC().Format(time.RFC3339))

	path := "/accounts/" + c.accountID + "/analytics/usage?" + query.Encode()
	result, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}

	var aggregate struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(result, &aggregate); err != nil {
		return 0, fmt.Errorf("decode usage aggregate: %w", err)
	}
	if aggregate.Count < 0 {
		return 0, fmt.Errorf("usage aggregate for %s is negative: %d", resource, aggregate.Count)
	}
	return aggregate.Count, nil
}
