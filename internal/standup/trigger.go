// Package standup pre-provisions the secondary environment ahead of need,
// so a later failover does not pay cold-start latency. The dispatch is
// fire-and-forget, deduplicated to at most once per billing month.
package standup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	dispatchTimeout = 10 * time.Second
	// markerTTL outlives any billing cycle so a marker never expires
	// mid-month, but still clears itself from the store eventually.
	markerTTL = 40 * 24 * time.Hour
)

// Trigger dispatches the secondary-environment provisioning workflow.
type Trigger struct {
	logger  zerolog.Logger
	markers MarkerStore
	url     string
	token   string
	client  *retryablehttp.Client
}

// NewTrigger constructs a Trigger. An empty url or token disables dispatch;
// TriggerStandup then skips with a log line instead of failing.
func NewTrigger(logger zerolog.Logger, markers MarkerStore, url, token string) *Trigger {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: dispatchTimeout}

	return &Trigger{
		logger:  logger,
		markers: markers,
		url:     url,
		token:   token,
		client:  client,
	}
}

// TriggerStandup fires the provisioning signal for the given billing month,
// at most once per month. Returns whether a dispatch actually happened.
func (t *Trigger) TriggerStandup(ctx context.Context, monthStart time.Time) (bool, error) {
	if t.url == "" || t.token == "" {
		t.logger.Info().Msg("standup dispatch not configured, skipping")
		return false, nil
	}

	key := "standup:" + monthStart.UTC().Format("2006-01")

	exists, err := t.markers.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check standup marker: %w", err)
	}
	if exists {
		t.logger.Debug().Str("marker", key).Msg("standup already triggered this month")
		return false, nil
	}

	if err := t.dispatch(ctx, monthStart); err != nil {
		return false, err
	}

	if err := t.markers.Set(ctx, key, markerTTL); err != nil {
		// Dispatch went out; a failed marker write risks one duplicate next
		// tick, which the provisioning workflow must tolerate anyway.
		t.logger.Error().Str("marker", key).Err(err).Msg("standup marker write failed")
	}

	t.logger.Info().Str("marker", key).Msg("standup dispatched")
	return true, nil
}

func (t *Trigger) dispatch(ctx context.Context, monthStart time.Time) error {
	payload, err := json.Marshal(map[string]string{
		"workflow": "secondary-standup",
		"month":    monthStart.UTC().Format("2006-01"),
	})
	if err != nil {
		return fmt.Errorf("encode standup payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build standup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("standup dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("standup dispatch failed: %s", resp.Status)
	}
	return nil
}
