package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scene outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRepaired = "repaired"
	OutcomeFallback = "fallback"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scenes           *prometheus.CounterVec
	failures         *prometheus.CounterVec
	repairs          prometheus.Counter
	upstreamDuration *prometheus.HistogramVec
	violations       *prometheus.CounterVec
	throttled        prometheus.Counter
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		scenes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divergence_scenes_total",
				Help: "Total number of scenes returned, partitioned by coercion outcome.",
			},
			[]string{"outcome"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divergence_turn_failures_total",
				Help: "Total number of failed turns, partitioned by error kind.",
			},
			[]string{"kind"},
		),
		repairs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "divergence_scene_repairs_total",
				Help: "Total number of individual field repairs applied by the coercer.",
			},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "divergence_upstream_request_duration_seconds",
				Help:    "Duration of model requests.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"provider", "status"},
		),
		violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divergence_progression_violations_total",
				Help: "Total number of chapter or ending corrections, partitioned by rule.",
			},
			[]string{"rule"},
		),
		throttled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "divergence_turns_throttled_total",
				Help: "Total number of turns rejected by the rate limiter.",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SceneServed(outcome string, repairs int) {
	if m == nil {
		return
	}
	m.scenes.WithLabelValues(outcome).Inc()
	m.repairs.Add(float64(repairs))
}

func (m *Metrics) TurnFailed(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveUpstream(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.upstreamDuration.With(prometheus.Labels{"provider": provider, "status": status}).Observe(d.Seconds())
}

func (m *Metrics) ProgressionViolation(rule string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(rule).Inc()
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
