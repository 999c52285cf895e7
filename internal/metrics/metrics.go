package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for edge-watchdog.
type Metrics struct {
	registry                *prometheus.Registry
	tickDurationSeconds     prometheus.Histogram
	resourceUsagePct        *prometheus.GaugeVec
	alertLevel              prometheus.Gauge
	divertedServices        prometheus.Gauge
	failoversTotal          *prometheus.CounterVec
	revertsTotal            *prometheus.CounterVec
	usageQueryErrorsTotal   prometheus.Counter
	lastSuccessfulTickGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		tickDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edge_watchdog_tick_duration_seconds",
			Help:    "Duration of orchestration ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		resourceUsagePct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edge_watchdog_resource_usage_pct",
			Help: "Resource consumption as percent of the monthly allowance.",
		}, []string{"resource"}),
		alertLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_watchdog_alert_level",
			Help: "Current alert level as severity (0=normal..3=critical).",
		}),
		divertedServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_watchdog_diverted_services",
			Help: "Number of services currently diverted to the secondary environment.",
		}),
		failoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_watchdog_failovers_total",
			Help: "Total failover executions by service and outcome.",
		}, []string{"service", "outcome"}),
		revertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_watchdog_reverts_total",
			Help: "Total revert executions by service and outcome.",
		}, []string{"service", "outcome"}),
		usageQueryErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_watchdog_usage_query_errors_total",
			Help: "Total failed usage queries.",
		}),
		lastSuccessfulTickGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_watchdog_last_successful_tick_timestamp",
			Help: "Unix timestamp of the last successful tick.",
		}),
	}

	registry.MustRegister(
		m.tickDurationSeconds,
		m.resourceUsagePct,
		m.alertLevel,
		m.divertedServices,
		m.failoversTotal,
		m.revertsTotal,
		m.usageQueryErrorsTotal,
		m.lastSuccessfulTickGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTickDuration records the duration of a completed tick.
func (m *Metrics) ObserveTickDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.tickDurationSeconds.Observe(duration.Seconds())
}

// SetResourceUsagePct sets the usage gauge for one resource.
func (m *Metrics) SetResourceUsagePct(resource string, pct float64) {
	if m == nil {
		return
	}
	m.resourceUsagePct.WithLabelValues(resource).Set(pct)
}

// SetAlertLevel sets the alert level gauge to a severity value.
func (m *Metrics) SetAlertLevel(severity int) {
	if m == nil {
		return
	}
	m.alertLevel.Set(float64(severity))
}

// SetDivertedServices sets the diverted services gauge.
func (m *Metrics) SetDivertedServices(count int) {
	if m == nil {
		return
	}
	m.divertedServices.Set(float64(count))
}

// IncFailovers increments the failover counter for the given service/outcome.
func (m *Metrics) IncFailovers(service, outcome string) {
	if m == nil {
		return
	}
	m.failoversTotal.WithLabelValues(service, outcome).Inc()
}

// IncReverts increments the revert counter for the given service/outcome.
func (m *Metrics) IncReverts(service, outcome string) {
	if m == nil {
		return
	}
	m.revertsTotal.WithLabelValues(service, outcome).Inc()
}

// AddUsageQueryErrors adds to the failed usage query counter.
func (m *Metrics) AddUsageQueryErrors(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.usageQueryErrorsTotal.Add(float64(count))
}

// SetLastSuccessfulTickTimestamp sets the last successful tick time.
func (m *Metrics) SetLastSuccessfulTickTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulTickGauge.Set(float64(t.Unix()))
}
