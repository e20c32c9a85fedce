// Package metrics holds the Prometheus collectors of the people-match server.
//
// Collectors are registered on an injected prometheus.Registerer rather than
// the global default, so tests can build a fresh set per test without
// "duplicate metrics collector registration" panics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "people_match"

// Metrics bundles every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// searches counts filter searches. Labels: outcome (hit, empty)
	searches *prometheus.CounterVec

	// bestMatchLatency measures best-match scans. Labels: policy
	bestMatchLatency *prometheus.HistogramVec

	// bestMatchOutcomes counts best-match results. Labels: policy, outcome (found, none, unknown_user)
	bestMatchOutcomes *prometheus.CounterVec

	// mutations counts journaled state changes. Labels: kind, result (ok, error)
	mutations *prometheus.CounterVec

	// httpRequests counts served requests. Labels: method, route, status
	httpRequests *prometheus.CounterVec

	// httpDuration measures request latency. Labels: method, route
	httpDuration *prometheus.HistogramVec

	// users and questions track population size.
	users     prometheus.Gauge
	questions prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "searches_total",
			Help:      "Total filter searches",
		}, []string{"outcome"}),

		bestMatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "best_match_duration_seconds",
			Help:      "Time spent scanning the population for a best match",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"policy"}),

		bestMatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "best_match_total",
			Help:      "Total best-match queries by outcome",
		}, []string{"policy", "outcome"}),

		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "mutations_total",
			Help:      "Total journaled state changes",
		}, []string{"kind", "result"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		users: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "users",
			Help:      "Registered users",
		}),

		questions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "questions",
			Help:      "Questions in the pool",
		}),
	}
}

// Search records one filter search.
func (m *Metrics) Search(results int) {
	if m == nil {
		return
	}
	outcome := "hit"
	if results == 0 {
		outcome = "empty"
	}
	m.searches.WithLabelValues(outcome).Inc()
}

// BestMatch records one best-match scan.
func (m *Metrics) BestMatch(policy, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bestMatchLatency.WithLabelValues(policy).Observe(elapsed.Seconds())
	m.bestMatchOutcomes.WithLabelValues(policy, outcome).Inc()
}

// Mutation records one journal write attempt.
func (m *Metrics) Mutation(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(kind, result).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetPopulation updates the user and question gauges.
func (m *Metrics) SetPopulation(users, questions int) {
	if m == nil {
		return
	}
	m.users.Set(float64(users))
	m.questions.Set(float64(questions))
}
