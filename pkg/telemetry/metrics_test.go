package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/vango-dev/observ/pkg/observ"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetricsRecordFlushes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))
	rt := observ.NewRuntime(observ.WithHooks(m))

	n := rt.NewNode(map[string]any{"a": 1, "b": 1})
	o := rt.NewObserver(func() error {
		n.Get("a")
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	sel := observ.SelectorOn(rt, func() int { return n.Get("b").(int) * 2 })
	sel.Get()

	if err := n.At("a").Set(2); err != nil {
		t.Fatal(err)
	}
	if err := n.At("b").Set(2); err != nil {
		t.Fatal(err)
	}

	if got := metricCounterValue(t, m.flushesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("flushes_total(success)=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.writesTotal); got != 2 {
		t.Errorf("flush_writes_total=%v, want 2", got)
	}
	// Direct first runs count too.
	if got := metricCounterValue(t, m.runsTotal.WithLabelValues("observer", "success")); got != 2 {
		t.Errorf("observer_runs_total(observer)=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.runsTotal.WithLabelValues("selector", "success")); got != 2 {
		t.Errorf("observer_runs_total(selector)=%v, want 2", got)
	}
	if got := metricHistogramCount(t, m.flushDuration); got != 2 {
		t.Errorf("flush_duration_seconds count=%d, want 2", got)
	}
	if got := metricGaugeValue(t, m.activeFlushes); got != 0 {
		t.Errorf("active_flushes=%v, want 0", got)
	}
}

func TestMetricsRecordErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	rt := observ.NewRuntime(observ.WithHooks(m), observ.WithBudget(observ.Budget{MaxRounds: 5}))

	n := rt.NewNode(map[string]any{"fail": false, "loop": 0})
	failing := rt.NewObserver(func() error {
		if n.Get("fail") == true {
			return errors.New("boom")
		}
		return nil
	})
	if err := failing.Run(); err != nil {
		t.Fatal(err)
	}
	if err := n.At("fail").Set(true); err == nil {
		t.Fatal("expected the observer error to reach the writer")
	}
	if got := metricCounterValue(t, m.runsTotal.WithLabelValues("observer", "error")); got != 1 {
		t.Errorf("observer_runs_total(error)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.errorsTotal.WithLabelValues("observer")); got != 1 {
		t.Errorf("errors_total(observer)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.flushesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("flushes_total(error)=%v, want 1", got)
	}

	loop := rt.NewObserver(func() error {
		v := n.Get("loop").(int)
		return n.At("loop").Set(v + 1)
	})
	defer loop.Dispose()
	if err := loop.Run(); !errors.Is(err, observ.ErrCascadeLimit) {
		t.Fatalf("expected cascade limit, got %v", err)
	}
	if got := metricCounterValue(t, m.flushesTotal.WithLabelValues("cascade_limit")); got != 1 {
		t.Errorf("flushes_total(cascade_limit)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.errorsTotal.WithLabelValues("cascade_limit")); got != 1 {
		t.Errorf("errors_total(cascade_limit)=%v, want 1", got)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{observ.ErrObserverPanic, "panic"},
		{observ.ErrReentrantRun, "reentrant"},
		{observ.ErrNodeDisposed, "disposed"},
		{observ.ErrIndexOutOfRange, "write"},
		{errors.New("custom"), "observer"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v)=%q, want %q", tt.err, got, tt.want)
		}
	}
}
