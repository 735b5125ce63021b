// Package telemetry instruments an observ.Runtime.
//
// Both collectors implement observ.Hooks and are installed with
// observ.WithHooks:
//
//	metrics := telemetry.NewMetrics(telemetry.WithNamespace("app"))
//	tracing := telemetry.NewTracing(telemetry.WithTracerName("app"))
//	rt := observ.NewRuntime(observ.WithHooks(metrics, tracing))
//
// # Prometheus Metrics
//
// NewMetrics registers these collectors (namespace "observ" by default):
//   - observ_flushes_total: flushes by status
//   - observ_flush_duration_seconds: flush duration histogram
//   - observ_flush_rounds: propagation rounds per flush
//   - observ_flush_writes_total: written paths committed
//   - observ_observer_runs_total: observer runs by kind and status
//   - observ_observer_run_duration_seconds: run duration histogram by kind
//   - observ_observers_skipped_total: scheduled runs that were skipped
//   - observ_errors_total: flush errors by type
//   - observ_active_flushes: flushes in progress
//
// # OpenTelemetry
//
// NewTracing opens one span per flush and records a child span for every
// observer run inside it. Spans use the global tracer provider unless
// WithTracerProvider is given.
package telemetry
