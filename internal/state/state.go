package state

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nholik/edge-watchdog/internal/threshold"
	"github.com/nholik/edge-watchdog/internal/usage"
)

// maxLastErrors caps the persisted error history so the document cannot grow
// without bound.
const maxLastErrors = 20

// FailoverRecord captures one service's diversion, sufficient to undo it.
// Created exactly once per diversion; at most one record exists per service.
type FailoverRecord struct {
	Service string `json:"service"`
	// PrimaryRouteRef is the deleted primary route's identifier. Empty when
	// the route could not be located before diversion; revert then recreates
	// the route from catalog metadata.
	PrimaryRouteRef string    `json:"primary_route_ref,omitempty"`
	SecondaryRouteRef string  `json:"secondary_route_ref"`
	SecondaryTarget   string  `json:"secondary_target"`
	FailedAt          time.Time `json:"failed_at"`
}

// WatchdogState is the single persisted aggregate tying ticks together.
// Invariant: DivertedServices always equals the keys of Routing; mutate the
// two only through the methods below.
type WatchdogState struct {
	LastCheck         time.Time                 `json:"last_check"`
	BillingMonthStart time.Time                 `json:"billing_month_start"`
	Usage             usage.Snapshot            `json:"usage"`
	Level             threshold.Level           `json:"level"`
	DivertedServices  []string                  `json:"diverted_services"`
	Routing           map[string]FailoverRecord `json:"routing"`
	GCPOverrides      map[string]string         `json:"gcp_overrides"`
	LastErrors        []string                  `json:"last_errors"`
}

// Empty returns the initial state: normal level, nothing diverted.
func Empty() WatchdogState {
	return WatchdogState{
		Level:        threshold.LevelNormal,
		Usage:        usage.Snapshot{},
		Routing:      map[string]FailoverRecord{},
		GCPOverrides: map[string]string{},
	}
}

// Normalize repairs a loaded document: nil maps become empty and the
// diverted list is rebuilt from the routing keys, restoring the invariant if
// the file was hand-edited or written by an older version.
func (s *WatchdogState) Normalize() {
	if s.Usage == nil {
		s.Usage = usage.Snapshot{}
	}
	if s.Routing == nil {
		s.Routing = map[string]FailoverRecord{}
	}
	if s.GCPOverrides == nil {
		s.GCPOverrides = map[string]string{}
	}
	if s.Level == "" {
		s.Level = threshold.LevelNormal
	}

	diverted := make([]string, 0, len(s.Routing))
	for service := range s.Routing {
		diverted = append(diverted, service)
	}
	sort.Strings(diverted)
	s.DivertedServices = diverted

	if len(s.LastErrors) > maxLastErrors {
		s.LastErrors = s.LastErrors[len(s.LastErrors)-maxLastErrors:]
	}
}

// IsDiverted reports whether the service currently has an active record.
func (s *WatchdogState) IsDiverted(service string) bool {
	_, ok := s.Routing[service]
	return ok
}

// AddDiversion records a new failover, updating the diverted list and the
// routing map together. Fails if a record already exists for the service.
func (s *WatchdogState) AddDiversion(record FailoverRecord) error {
	if record.Service == "" {
		return fmt.Errorf("failover record has no service name")
	}
	if s.IsDiverted(record.Service) {
		return fmt.Errorf("service %q already diverted", record.Service)
	}
	s.Routing[record.Service] = record
	s.DivertedServices = append(s.DivertedServices, record.Service)
	return nil
}

// RemoveDiversion drops the record for a service, updating both fields
// together. Fails if the service is not diverted.
func (s *WatchdogState) RemoveDiversion(service string) error {
	if !s.IsDiverted(service) {
		return fmt.Errorf("service %q not diverted", service)
	}
	delete(s.Routing, service)
	filtered := s.DivertedServices[:0]
	for _, name := range s.DivertedServices {
		if name != service {
			filtered = append(filtered, name)
		}
	}
	s.DivertedServices = filtered
	return nil
}

// ClearDiversions empties the diversion set and resets the level to normal.
func (s *WatchdogState) ClearDiversions() {
	s.Routing = map[string]FailoverRecord{}
	s.DivertedServices = nil
	s.Level = threshold.LevelNormal
}

// RecordErrors replaces the error history, keeping only the most recent
// entries.
func (s *WatchdogState) RecordErrors(errs []string) {
	if len(errs) > maxLastErrors {
		errs = errs[len(errs)-maxLastErrors:]
	}
	s.LastErrors = errs
}

// Store defines the interface for persisting the watchdog document.
type Store interface {
	Load(ctx context.Context) (WatchdogState, error)
	Save(ctx context.Context, state WatchdogState) error
}
