package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/limits"
	"github.com/nholik/edge-watchdog/internal/state"
	"github.com/nholik/edge-watchdog/internal/threshold"
	"github.com/nholik/edge-watchdog/internal/usage"
	"github.com/nholik/edge-watchdog/internal/watchdog"
)

type stubStore struct {
	doc state.WatchdogState
}

func (s *stubStore) Load(context.Context) (state.WatchdogState, error) {
	return s.doc, nil
}

func (s *stubStore) Save(_ context.Context, doc state.WatchdogState) error {
	doc.Normalize()
	s.doc = doc
	return nil
}

type stubCollector struct {
	snapshot usage.Snapshot
}

func (s *stubCollector) Collect(context.Context, time.Time, time.Time) (usage.Snapshot, []string) {
	return s.snapshot, nil
}

type stubExecutor struct{}

func (stubExecutor) ExecuteFailover(_ context.Context, service, _ string) (state.FailoverRecord, error) {
	return state.FailoverRecord{
		Service:           service,
		SecondaryRouteRef: "dns-" + service,
		SecondaryTarget:   service + "-proj.a.run.app",
		FailedAt:          time.Now().UTC(),
	}, nil
}

func (stubExecutor) ExecuteRevert(context.Context, state.FailoverRecord) error {
	return nil
}

func (stubExecutor) RevertAll(_ context.Context, routing map[string]state.FailoverRecord) ([]string, []string) {
	reverted := make([]string, 0, len(routing))
	for service := range routing {
		reverted = append(reverted, service)
	}
	return reverted, nil
}

type stubStandup struct{}

func (stubStandup) TriggerStandup(context.Context, time.Time) (bool, error) {
	return false, nil
}

func testHandler(t *testing.T, store *stubStore, token string) *AdminHandler {
	t.Helper()
	collector := &stubCollector{snapshot: usage.Snapshot{
		limits.WorkerRequests: usage.NewResourceUsage(550, 1000),
	}}
	w := watchdog.New(zerolog.Nop(), time.Minute, collector, stubExecutor{}, stubStandup{}, store,
		[]string{"api", "auth", "search", "webhooks", "static"}, 60, 80)
	return NewAdminHandler(zerolog.Nop(), w, token)
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestAdmin_Unauthorized(t *testing.T) {
	handler := testHandler(t, &stubStore{doc: state.Empty()}, "secret").Router()

	cases := []struct {
		name  string
		token string
	}{
		{name: "no_token", token: ""},
		{name: "wrong_token", token: "guess"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, handler, http.MethodGet, "/api/status", tc.token, "")
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}

func TestAdmin_TokenNotConfigured(t *testing.T) {
	handler := testHandler(t, &stubStore{doc: state.Empty()}, "").Router()

	resp := doRequest(t, handler, http.MethodGet, "/api/status", "anything", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("unset token must close the surface, got %d", resp.Code)
	}
}

func TestAdmin_Status(t *testing.T) {
	store := &stubStore{doc: state.Empty()}
	store.doc.Level = threshold.LevelWarning
	handler := testHandler(t, store, "secret").Router()

	resp := doRequest(t, handler, http.MethodGet, "/api/status", "secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var doc state.WatchdogState
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if doc.Level != threshold.LevelWarning {
		t.Fatalf("unexpected level: %s", doc.Level)
	}
}

func TestAdmin_Check(t *testing.T) {
	store := &stubStore{doc: state.Empty()}
	handler := testHandler(t, store, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/check", "secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var doc state.WatchdogState
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if doc.LastCheck.IsZero() {
		t.Fatal("check must run a tick and return the fresh document")
	}
}

func TestAdmin_FailoverAndRevert(t *testing.T) {
	store := &stubStore{doc: state.Empty()}
	handler := testHandler(t, store, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/failover/api", "secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("failover: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var record state.FailoverRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Service != "api" {
		t.Fatalf("unexpected record: %+v", record)
	}

	// Diverting again conflicts.
	resp = doRequest(t, handler, http.MethodPost, "/api/failover/api", "secret", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate failover: expected 409, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/revert/api", "secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("revert: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Reverting an undiverted service conflicts.
	resp = doRequest(t, handler, http.MethodPost, "/api/revert/api", "secret", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate revert: expected 409, got %d", resp.Code)
	}
}

func TestAdmin_FailoverUnknownService(t *testing.T) {
	handler := testHandler(t, &stubStore{doc: state.Empty()}, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/failover/payments", "secret", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAdmin_RevertAll(t *testing.T) {
	store := &stubStore{doc: state.Empty()}
	if err := store.doc.AddDiversion(state.FailoverRecord{Service: "api", SecondaryRouteRef: "dns-api"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	handler := testHandler(t, store, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/revert", "secret", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Reverted []string `json:"reverted"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Reverted) != 1 || payload.Reverted[0] != "api" {
		t.Fatalf("unexpected reverted list: %v", payload.Reverted)
	}
}

func TestAdmin_RegisterOverride(t *testing.T) {
	store := &stubStore{doc: state.Empty()}
	handler := testHandler(t, store, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/gcp-url", "secret",
		`{"service":"api","url":"api-custom.a.run.app"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if store.doc.GCPOverrides["api"] != "api-custom.a.run.app" {
		t.Fatalf("override not persisted: %v", store.doc.GCPOverrides)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/gcp-url", "secret", `{"service":"api"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing url: expected 400, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/gcp-url", "secret", `not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/gcp-url", "secret",
		`{"service":"payments","url":"x.a.run.app"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown service: expected 404, got %d", resp.Code)
	}
}

func TestAdmin_DigestWithoutNotifier(t *testing.T) {
	handler := testHandler(t, &stubStore{doc: state.Empty()}, "secret").Router()

	resp := doRequest(t, handler, http.MethodPost, "/api/digest", "secret", "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a notifier, got %d", resp.Code)
	}
}
