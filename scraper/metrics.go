package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the extraction engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry            *prometheus.Registry
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	AttemptsTotal       *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	ItemsTotal          prometheus.Counter
	RejectedTotal       *prometheus.CounterVec
	SessionsTotal       *prometheus.CounterVec
	ChallengePagesTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscrape_runs_total",
			Help: "Total scrape runs by result.",
		},
		[]string{"result"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopscrape_run_duration_seconds",
			Help:    "Wall time of a scrape run including retries and pacing.",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscrape_attempts_total",
			Help: "Total scrape attempts by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopscrape_retries_total",
			Help: "Total number of attempts scheduled after a failed one.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopscrape_items_collected_total",
			Help: "Total number of items returned to callers.",
		},
	)
	rejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscrape_candidates_rejected_total",
			Help: "Candidate containers rejected during extraction by reason.",
		},
		[]string{"reason"},
	)
	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscrape_sessions_total",
			Help: "Browser sessions acquired, by whether they were launched or reused.",
		},
		[]string{"kind"},
	)
	challenges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopscrape_challenge_pages_total",
			Help: "Captured pages that looked like a bot check.",
		},
	)

	registry.MustRegister(runs, runDuration, attempts, retries, items, rejected, sessions, challenges)

	return &Metrics{
		Registry:            registry,
		RunsTotal:           runs,
		RunDuration:         runDuration,
		AttemptsTotal:       attempts,
		RetriesTotal:        retries,
		ItemsTotal:          items,
		RejectedTotal:       rejected,
		SessionsTotal:       sessions,
		ChallengePagesTotal: challenges,
	}
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// IncAttempt increments the attempts counter for an outcome.
func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// IncRetry increments the retries counter.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// AddItems adds n to the items counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsTotal.Add(float64(n))
}

// IncRejected increments the rejected candidates counter.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// IncSession increments the sessions counter ("launched" or "reused").
func (m *Metrics) IncSession(kind string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(kind).Inc()
}

// IncChallenge increments the challenge pages counter.
func (m *Metrics) IncChallenge() {
	if m == nil {
		return
	}
	m.ChallengePagesTotal.Inc()
}
