// Package cloudflare is a narrow client for the edge platform's control API:
// the analytics aggregates, worker routes and DNS records the watchdog needs.
// Responses are decoded into a tagged success/failure envelope at this
// boundary; raw payloads never reach the evaluator or state machine.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultRetryMax    = 2
	errorBodyLimit     = 2048
	responseBytesLimit = 1 << 20
)

// ErrNotFound marks a delete or lookup against a resource that no longer
// exists. Callers treat it as "already gone" where idempotence requires.
var ErrNotFound = errors.New("resource not found")

// Client talks to the platform API for one zone/account pair.
type Client struct {
	logger    zerolog.Logger
	baseURL   string
	token     string
	zoneID    string
	accountID string
	http      *retryablehttp.Client
}

// Option customizes client behavior.
type Option func(*Client)

// WithTimeout bounds each API request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.HTTPClient.Timeout = timeout
		}
	}
}

// New constructs a Client for the given API base URL and credentials.
func New(logger zerolog.Logger, baseURL, token, zoneID, accountID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("api base url must not be empty")
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = defaultRetryMax
	httpClient.Logger = nil
	httpClient.HTTPClient = &http.Client{Timeout: defaultTimeout}

	c := &Client{
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		zoneID:    zoneID,
		accountID: accountID,
		http:      httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HasToken reports whether an API credential is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the platform's response wrapper: success with a result, or a
// list of coded errors.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, responseBytesLimit))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %s: %s", method, path, resp.Status, truncate(data))
	}

	var parsed envelope
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("%s %s: %s", method, path, formatAPIErrors(parsed.Errors))
	}
	return parsed.Result, nil
}

func formatAPIErrors(errs []apiError) string {
	if len(errs) == 0 {
		return "api reported failure without errors"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%d: %s", e.Code, e.Message))
	}
	return "api error " + strings.Join(parts, "; ")
}

func truncate(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > errorBodyLimit {
		return text[:errorBodyLimit]
	}
	return text
}
