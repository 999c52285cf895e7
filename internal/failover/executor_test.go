package failover

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/edge-watchdog/internal/cloudflare"
	"github.com/nholik/edge-watchdog/internal/config"
	"github.com/nholik/edge-watchdog/internal/state"
)

type fakeAPI struct {
	routes         []cloudflare.WorkerRoute
	deletedRoutes  []string
	createdRoutes  []string
	dnsRecords     map[string]string
	deletedRecords []string
	nextRecordID   int

	listErr         error
	deleteRouteErr  error
	createRouteErr  error
	createRecordErr error
	deleteRecordErr error
}

func newFakeAPI(routes ...cloudflare.WorkerRoute) *fakeAPI {
	return &fakeAPI{
		routes:     routes,
		dnsRecords: map[string]string{},
	}
}

func (f *fakeAPI) ListWorkerRoutes(context.Context) ([]cloudflare.WorkerRoute, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.routes, nil
}

func (f *fakeAPI) CreateWorkerRoute(_ context.Context, pattern, script string) (string, error) {
	if f.createRouteErr != nil {
		return "", f.createRouteErr
	}
	id := fmt.Sprintf("route-%d", len(f.createdRoutes)+1)
	f.createdRoutes = append(f.createdRoutes, pattern+"|"+script)
	f.routes = append(f.routes, cloudflare.WorkerRoute{ID: id, Pattern: pattern, Script: script})
	return id, nil
}

func (f *fakeAPI) DeleteWorkerRoute(_ context.Context, id string) error {
	if f.deleteRouteErr != nil {
		return f.deleteRouteErr
	}
	f.deletedRoutes = append(f.deletedRoutes, id)
	return nil
}

func (f *fakeAPI) CreateDNSRecord(_ context.Context, name, target string, proxied bool) (string, error) {
	if f.createRecordErr != nil {
		return "", f.createRecordErr
	}
	if proxied {
		return "", errors.New("failover records must be un-proxied")
	}
	f.nextRecordID++
	id := fmt.Sprintf("dns-%d", f.nextRecordID)
	f.dnsRecords[id] = name + "->" + target
	return id, nil
}

func (f *fakeAPI) DeleteDNSRecord(_ context.Context, id string) error {
	if f.deleteRecordErr != nil {
		return f.deleteRecordErr
	}
	if _, ok := f.dnsRecords[id]; !ok {
		return cloudflare.ErrNotFound
	}
	delete(f.dnsRecords, id)
	f.deletedRecords = append(f.deletedRecords, id)
	return nil
}

func testExecutor(api RoutingAPI) *Executor {
	catalog := config.DefaultCatalog("example.com")
	fixed := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	return NewExecutor(zerolog.Nop(), api, catalog, "example.com", "prod-proj",
		WithClock(func() time.Time { return fixed }))
}

func TestResolveTarget(t *testing.T) {
	e := testExecutor(newFakeAPI())

	target, err := e.ResolveTarget("api", "")
	if err != nil {
		t.Fatalf("resolve target: %v", err)
	}
	if target != "api-prod-proj.a.run.app" {
		t.Fatalf("unexpected conventional target: %q", target)
	}

	target, err = e.ResolveTarget("api", "custom.a.run.app")
	if err != nil {
		t.Fatalf("resolve override: %v", err)
	}
	if target != "custom.a.run.app" {
		t.Fatalf("override must win, got %q", target)
	}

	bare := NewExecutor(zerolog.Nop(), newFakeAPI(), config.DefaultCatalog("example.com"), "example.com", "")
	if _, err := bare.ResolveTarget("api", ""); err == nil {
		t.Fatal("expected error with no override and no project")
	}
}

func TestExecuteFailover(t *testing.T) {
	api := newFakeAPI(cloudflare.WorkerRoute{ID: "r1", Pattern: "example.com/api/*", Script: "api-worker"})
	e := testExecutor(api)

	record, err := e.ExecuteFailover(context.Background(), "api", "")
	if err != nil {
		t.Fatalf("execute failover: %v", err)
	}

	if record.Service != "api" {
		t.Fatalf("unexpected service: %q", record.Service)
	}
	if record.PrimaryRouteRef != "r1" {
		t.Fatalf("expected deleted route recorded, got %q", record.PrimaryRouteRef)
	}
	if record.SecondaryTarget != "api-prod-proj.a.run.app" {
		t.Fatalf("unexpected target: %q", record.SecondaryTarget)
	}
	if record.FailedAt.IsZero() {
		t.Fatal("expected failover timestamp")
	}
	if !reflect.DeepEqual(api.deletedRoutes, []string{"r1"}) {
		t.Fatalf("expected primary route deleted, got %v", api.deletedRoutes)
	}
	if got := api.dnsRecords[record.SecondaryRouteRef]; got != "api.example.com->api-prod-proj.a.run.app" {
		t.Fatalf("unexpected dns record: %q", got)
	}
}

func TestExecuteFailover_MatchesByScript(t *testing.T) {
	// Pattern drifted from catalog; the script name still identifies the route.
	api := newFakeAPI(cloudflare.WorkerRoute{ID: "r2", Pattern: "example.com/v2/api/*", Script: "api-worker"})
	e := testExecutor(api)

	record, err := e.ExecuteFailover(context.Background(), "api", "")
	if err != nil {
		t.Fatalf("execute failover: %v", err)
	}
	if record.PrimaryRouteRef != "r2" {
		t.Fatalf("expected script match, got %q", record.PrimaryRouteRef)
	}
}

func TestExecuteFailover_MissingRouteProceeds(t *testing.T) {
	api := newFakeAPI()
	e := testExecutor(api)

	record, err := e.ExecuteFailover(context.Background(), "api", "")
	if err != nil {
		t.Fatalf("missing route must not fail the diversion: %v", err)
	}
	if record.PrimaryRouteRef != "" {
		t.Fatalf("expected empty primary ref, got %q", record.PrimaryRouteRef)
	}
	if len(api.dnsRecords) != 1 {
		t.Fatalf("expected dns record created, got %v", api.dnsRecords)
	}
}

func TestExecuteFailover_UnknownService(t *testing.T) {
	e := testExecutor(newFakeAPI())
	if _, err := e.ExecuteFailover(context.Background(), "payments", ""); err == nil {
		t.Fatal("expected error for unknown service")
	}
}

func TestExecuteFailover_DNSCreateFails(t *testing.T) {
	api := newFakeAPI(cloudflare.WorkerRoute{ID: "r1", Pattern: "example.com/api/*", Script: "api-worker"})
	api.createRecordErr = errors.New("dns unavailable")
	e := testExecutor(api)

	if _, err := e.ExecuteFailover(context.Background(), "api", ""); err == nil {
		t.Fatal("expected error when dns create fails")
	}
}

func TestFailoverThenRevert(t *testing.T) {
	api := newFakeAPI(cloudflare.WorkerRoute{ID: "r1", Pattern: "example.com/api/*", Script: "api-worker"})
	e := testExecutor(api)

	record, err := e.ExecuteFailover(context.Background(), "api", "")
	if err != nil {
		t.Fatalf("execute failover: %v", err)
	}

	if err := e.ExecuteRevert(context.Background(), record); err != nil {
		t.Fatalf("execute revert: %v", err)
	}

	if len(api.dnsRecords) != 0 {
		t.Fatalf("expected dns record removed, got %v", api.dnsRecords)
	}
	if !reflect.DeepEqual(api.createdRoutes, []string{"example.com/api/*|api-worker"}) {
		t.Fatalf("expected primary route recreated from catalog, got %v", api.createdRoutes)
	}
}

func TestExecuteRevert_ToleratesMissingRecord(t *testing.T) {
	api := newFakeAPI()
	e := testExecutor(api)

	record := state.FailoverRecord{
		Service:           "api",
		SecondaryRouteRef: "dns-long-gone",
		SecondaryTarget:   "api-prod-proj.a.run.app",
	}
	if err := e.ExecuteRevert(context.Background(), record); err != nil {
		t.Fatalf("missing dns record must not fail revert: %v", err)
	}
	if len(api.createdRoutes) != 1 {
		t.Fatalf("expected primary route recreated, got %v", api.createdRoutes)
	}
}

func TestRevertAll_PartialFailure(t *testing.T) {
	api := newFakeAPI()
	e := testExecutor(api)

	routing := map[string]state.FailoverRecord{}
	for _, service := range []string{"api", "auth", "search"} {
		record, err := e.ExecuteFailover(context.Background(), service, "")
		if err != nil {
			t.Fatalf("seed failover for %s: %v", service, err)
		}
		routing[service] = record
	}

	// Break DNS deletion for one record only.
	failing := &selectiveAPI{fakeAPI: api, failDNSDelete: routing["auth"].SecondaryRouteRef}
	e = testExecutor(failing)

	reverted, errs := e.RevertAll(context.Background(), routing)

	if !reflect.DeepEqual(reverted, []string{"api", "search"}) {
		t.Fatalf("expected other services still reverted, got %v", reverted)
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "auth") {
		t.Fatalf("expected one error naming the failed service, got %v", errs)
	}
}

type selectiveAPI struct {
	*fakeAPI
	failDNSDelete string
}

func (s *selectiveAPI) DeleteDNSRecord(ctx context.Context, id string) error {
	if id == s.failDNSDelete {
		return errors.New("dns delete rejected")
	}
	return s.fakeAPI.DeleteDNSRecord(ctx, id)
}
