package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the edit engine.
type Metrics struct {
	config MetricsConfig

	// Edit metrics
	edits        *prometheus.CounterVec
	editDuration *prometheus.HistogramVec
	inFlight     *prometheus.GaugeVec

	// Transaction metrics
	transactionsApplied *prometheus.CounterVec

	// Outcome metrics
	validationFailures *prometheus.CounterVec
	noEffect           *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Policy metrics
	policyDecisions *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		edits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edits_total",
				Help:      "Total number of edit requests by engine, request kind and outcome",
			},
			[]string{"engine", "kind", "outcome"},
		),
		editDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "edit_duration_seconds",
				Help:      "Duration of edit requests in seconds",
				Buckets:   buckets,
			},
			[]string{"engine", "kind"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "edits_in_flight",
				Help:      "Number of edit requests currently being processed",
			},
			[]string{"engine"},
		),
		transactionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_applied_total",
				Help:      "Total number of transactions committed by engine and transaction type",
			},
			[]string{"engine", "type"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of edits rejected by field validation",
			},
			[]string{"engine", "kind"},
		),
		noEffect: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "no_effect_total",
				Help:      "Total number of edits that would not change the object",
			},
			[]string{"engine", "kind"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
		policyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Total number of capability checks by capability and decision",
			},
			[]string{"capability", "decision"},
		),
	}

	collectors := []prometheus.Collector{
		m.edits,
		m.editDuration,
		m.inFlight,
		m.transactionsApplied,
		m.validationFailures,
		m.noEffect,
		m.errorsByClass,
		m.errorsByCode,
		m.policyDecisions,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordEdit records a finished edit request.
func (m *Metrics) RecordEdit(engine, kind, outcome string, duration time.Duration) {
	if m.edits == nil {
		return
	}
	m.edits.WithLabelValues(engine, kind, outcome).Inc()
	m.editDuration.WithLabelValues(engine, kind).Observe(duration.Seconds())

	switch outcome {
	case "invalid":
		m.validationFailures.WithLabelValues(engine, kind).Inc()
	case "no_effect":
		m.noEffect.WithLabelValues(engine, kind).Inc()
	}
}

// EditStarted increments the in-flight gauge for an engine.
func (m *Metrics) EditStarted(engine string) {
	if m.inFlight == nil {
		return
	}
	m.inFlight.WithLabelValues(engine).Inc()
}

// EditFinished decrements the in-flight gauge for an engine.
func (m *Metrics) EditFinished(engine string) {
	if m.inFlight == nil {
		return
	}
	m.inFlight.WithLabelValues(engine).Dec()
}

// RecordTransactions counts committed transactions by type.
func (m *Metrics) RecordTransactions(engine string, types []string) {
	if m.transactionsApplied == nil {
		return
	}
	for _, t := range types {
		m.transactionsApplied.WithLabelValues(engine, t).Inc()
	}
}

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordPolicyDecision records the result of a capability check.
func (m *Metrics) RecordPolicyDecision(capability string, allowed bool) {
	if m.policyDecisions == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.policyDecisions.WithLabelValues(capability, decision).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
