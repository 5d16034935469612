// Package metrics holds the Prometheus collectors shared by the api and worker processes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sketchgen/internal/router"
)

const namespace = "sketchgen"

// Metrics groups every collector. Build one per process with New.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	providerRetries  *prometheus.CounterVec
	moderation       *prometheus.CounterVec
	budgetUsed       prometheus.Gauge
	budgetChecks     *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	submissions      *prometheus.CounterVec
	droppedTasks     *prometheus.CounterVec
}

// New registers the collectors on a private registry that also carries the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Generation jobs processed, partitioned by outcome.",
		}, []string{"outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one pipeline run.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"outcome"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Routed provider requests by provider and final result.",
		}, []string{"provider", "result"}),
		providerRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retryable provider failures that led to another attempt.",
		}, []string{"provider", "code"}),
		moderation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_checks_total",
			Help:      "Moderation audits by stage and verdict.",
		}, []string{"stage", "verdict"}),
		budgetUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_used_ratio",
			Help:      "Share of the monthly budget spent at the last check.",
		}),
		budgetChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_checks_total",
			Help:      "Budget admission decisions by code.",
		}, []string{"code"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued generation jobs at the last observation.",
		}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Generation submissions by result code.",
		}, []string{"code"}),
		droppedTasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_dropped_total",
			Help:      "Background tasks discarded because the queue was full.",
		}, []string{"runner"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveJob(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveModeration(stage string, passed bool) {
	if m == nil {
		return
	}
	verdict := "rejected"
	if passed {
		verdict = "passed"
	}
	m.moderation.WithLabelValues(stage, verdict).Inc()
}

// ObserveBudget records an admission decision; code is empty when allowed.
func (m *Metrics) ObserveBudget(code string, usagePercent float64) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.budgetChecks.WithLabelValues(code).Inc()
	m.budgetUsed.Set(usagePercent / 100)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ObserveSubmission(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "accepted"
	}
	m.submissions.WithLabelValues(code).Inc()
}

// TaskDropped matches background.Options.OnDrop.
func (m *Metrics) TaskDropped(runner string) {
	if m == nil {
		return
	}
	m.droppedTasks.WithLabelValues(runner).Inc()
}

// OnEvent counts router outcomes and retries.
func (m *Metrics) OnEvent(e router.Event) {
	if m == nil {
		return
	}
	provider := string(e.Provider)
	switch e.Type {
	case router.EventCompleted:
		m.providerAttempts.WithLabelValues(provider, "success").Inc()
	case router.EventFailed:
		m.providerAttempts.WithLabelValues(provider, "failure").Inc()
	case router.EventProgress:
		code := "unknown"
		if e.Err != nil {
			code = string(e.Err.Code)
		}
		m.providerRetries.WithLabelValues(provider, code).Inc()
	}
}

var _ router.Observer = (*Metrics)(nil)
