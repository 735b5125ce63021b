package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/observ/pkg/observ"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "observ").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush and run durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "observ",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records flush and run statistics as Prometheus metrics. It
// implements observ.Hooks.
type Metrics struct {
	flushesTotal  *prometheus.CounterVec
	flushDuration prometheus.Histogram
	flushRounds   prometheus.Histogram
	writesTotal   prometheus.Counter
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	skippedTotal  prometheus.Counter
	errorsTotal   *prometheus.CounterVec
	activeFlushes prometheus.Gauge
}

// NewMetrics creates and registers the collectors. Registering twice on
// the same registry panics, as with promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		flushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of flushes by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		flushRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_rounds",
			Help:        "Propagation rounds per flush",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),

		writesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_writes_total",
			Help:        "Total number of written paths committed by flushes",
			ConstLabels: config.ConstLabels,
		}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observer_runs_total",
			Help:        "Total number of observer runs by kind and status",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observer_run_duration_seconds",
			Help:        "Observer run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		skippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observers_skipped_total",
			Help:        "Scheduled observer runs skipped because the observer was disposed or already ran",
			ConstLabels: config.ConstLabels,
		}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total flush and observer errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		activeFlushes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_flushes",
			Help:        "Number of flushes in progress",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// FlushStarted implements observ.Hooks.
func (m *Metrics) FlushStarted(uint64) {
	m.activeFlushes.Inc()
}

// ObserverRan implements observ.Hooks.
func (m *Metrics) ObserverRan(s observ.RunStats) {
	kind := "observer"
	if s.Selector {
		kind = "selector"
	}
	status := "success"
	if s.Err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(categorizeError(s.Err)).Inc()
	}
	m.runsTotal.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(s.Duration.Seconds())
}

// FlushFinished implements observ.Hooks.
func (m *Metrics) FlushFinished(s observ.FlushStats) {
	m.activeFlushes.Dec()

	status := "success"
	if s.Err != nil {
		status = "error"
		if errors.Is(s.Err, observ.ErrCascadeLimit) {
			status = "cascade_limit"
			m.errorsTotal.WithLabelValues("cascade_limit").Inc()
		}
	}
	m.flushesTotal.WithLabelValues(status).Inc()
	m.flushDuration.Observe(s.Duration.Seconds())
	m.flushRounds.Observe(float64(s.Rounds))
	m.writesTotal.Add(float64(s.Writes))
	m.skippedTotal.Add(float64(s.Skipped))
}

// categorizeError returns a low-cardinality label for an observer error.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, observ.ErrObserverPanic):
		return "panic"
	case errors.Is(err, observ.ErrReentrantRun):
		return "reentrant"
	case errors.Is(err, observ.ErrNodeDisposed), errors.Is(err, observ.ErrObserverDisposed):
		return "disposed"
	case errors.Is(err, observ.ErrNotContainer), errors.Is(err, observ.ErrIndexOutOfRange):
		return "write"
	case errors.Is(err, observ.ErrCascadeLimit):
		return "cascade_limit"
	default:
		return "observer"
	}
}
