package usage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/limits"
)

const defaultQueryTimeout = 15 * time.Second

// Querier answers aggregate consumption questions for one resource over a
// time range.
type Querier interface {
	QueryUsage(ctx context.Context, resource limits.Resource, since, until time.Time) (int64, error)
}

// Collector builds usage snapshots by querying the analytics interface for
// every tracked resource concurrently. Individual query failures degrade to
// zero usage so the caller always receives a complete snapshot.
type Collector struct {
	logger        zerolog.Logger
	querier       Querier
	table         limits.Table
	hasCredential bool
	queryTimeout  time.Duration
	cache         *gocache.Cache
}

// CollectorOption customizes collector behavior.
type CollectorOption func(*Collector)

// WithQueryTimeout bounds each per-resource analytics query.
func WithQueryTimeout(timeout time.Duration) CollectorOption {
	return func(c *Collector) {
		if timeout > 0 {
			c.queryTimeout = timeout
		}
	}
}

// WithQueryCache caches per-resource counts for the given TTL so an admin
// check right after a scheduled tick does not re-query analytics.
func WithQueryCache(ttl time.Duration) CollectorOption {
	return func(c *Collector) {
		if ttl > 0 {
			c.cache = gocache.New(ttl, 2*ttl)
		}
	}
}

// NewCollector constructs a Collector. hasCredential reports whether the
// analytics credential is configured; without it Collect skips all queries
// and fails safe toward zero usage.
func NewCollector(logger zerolog.Logger, querier Querier, table limits.Table, hasCredential bool, opts ...CollectorOption) *Collector {
	c := &Collector{
		logger:        logger,
		querier:       querier,
		table:         table,
		hasCredential: hasCredential,
		queryTimeout:  defaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect returns a fully populated snapshot for the billing window plus one
// human-readable error per failed resource query. It never fails as a whole:
// a failed query contributes current=0 and an error string.
func (c *Collector) Collect(ctx context.Context, monthStart, now time.Time) (Snapshot, []string) {
	if !c.hasCredential {
		c.logger.Warn().Msg("analytics credential not configured, reporting zero usage")
		return ZeroSnapshot(c.table), []string{"analytics credential not configured; all usage reported as zero"}
	}

	resources := c.table.Resources()

	type queryResult struct {
		resource limits.Resource
		count    int64
		err      error
	}

	results := make([]queryResult, len(resources))
	var wg sync.WaitGroup
	for i, resource := range resources {
		wg.Add(1)
		go func(index int, resource limits.Resource) {
			defer wg.Done()
			count, err := c.queryOne(ctx, resource, monthStart, now)
			results[index] = queryResult{resource: resource, count: count, err: err}
		}(i, resource)
	}
	wg.Wait()

	snapshot := make(Snapshot, len(resources))
	errs := make([]string, 0)
	for _, result := range results {
		limit := c.table[result.resource]
		if result.err != nil {
			c.logger.Warn().
				Str("resource", string(result.resource)).
				Err(result.err).
				Msg("usage query failed, substituting zero")
			snapshot[result.resource] = NewResourceUsage(0, limit)
			errs = append(errs, fmt.Sprintf("usage query for %s failed: %v", result.resource, result.err))
			continue
		}
		snapshot[result.resource] = NewResourceUsage(result.count, limit)
	}

	sort.Strings(errs)
	return snapshot, errs
}

func (c *Collector) queryOne(ctx context.Context, resource limits.Resource, since, until time.Time) (int64, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(string(resource)); ok {
			return cached.(int64), nil
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	count, err := c.querier.QueryUsage(queryCtx, resource, since, until)
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		c.cache.SetDefault(string(resource), count)
	}
	return count, nil
}
