package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vango-dev/observ/pkg/observ"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name.
const defaultTracerName = "observ"

// TracingConfig configures the OpenTelemetry hooks.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "observ").
	TracerName string

	// Provider supplies the tracer. Default: the global provider.
	Provider trace.TracerProvider

	// IncludeDirectRuns records spans for observer runs that happen
	// outside a flush, such as first runs. Disabled by default.
	IncludeDirectRuns bool

	// Filter determines which observer runs get a span.
	// If nil, all runs are traced.
	Filter func(observ.RunStats) bool

	// AttributeExtractor adds custom attributes to each flush span.
	AttributeExtractor func(observ.FlushStats) []attribute.KeyValue

	tracer trace.Tracer
}

// TracingOption configures the OpenTelemetry hooks.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// WithDirectRuns enables spans for runs outside a flush.
func WithDirectRuns(include bool) TracingOption {
	return func(c *TracingConfig) {
		c.IncludeDirectRuns = include
	}
}

// WithRunFilter sets a filter for observer run spans.
func WithRunFilter(filter func(observ.RunStats) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor for flush spans.
func WithAttributeExtractor(extractor func(observ.FlushStats) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.AttributeExtractor = extractor
	}
}

// Tracing records a span per flush with a child span per observer run.
// It implements observ.Hooks.
type Tracing struct {
	config TracingConfig

	// flushes holds the open span context of every flush in progress.
	flushes sync.Map // uint64 -> context.Context
}

// NewTracing creates tracing hooks.
func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider != nil {
		config.tracer = config.Provider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}
	return &Tracing{config: config}
}

// FlushStarted implements observ.Hooks.
func (t *Tracing) FlushStarted(id uint64) {
	ctx, _ := t.config.tracer.Start(context.Background(), "observ.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int64("observ.flush_id", int64(id))),
		trace.WithTimestamp(time.Now()),
	)
	t.flushes.Store(id, ctx)
}

// ObserverRan implements observ.Hooks.
func (t *Tracing) ObserverRan(s observ.RunStats) {
	if t.config.Filter != nil && !t.config.Filter(s) {
		return
	}
	parent := context.Background()
	if s.Flush != 0 {
		ctx, ok := t.flushes.Load(s.Flush)
		if !ok {
			return
		}
		parent = ctx.(context.Context)
	} else if !t.config.IncludeDirectRuns {
		return
	}

	end := time.Now()
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("observer#%d", s.Observer)
	}
	_, span := t.config.tracer.Start(parent, "observ.run "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(end.Add(-s.Duration)),
		trace.WithAttributes(
			attribute.Int64("observ.observer_id", int64(s.Observer)),
			attribute.Bool("observ.selector", s.Selector),
			attribute.Int("observ.round", s.Round),
			attribute.Int("observ.deps", s.Deps),
		),
	)
	if s.Err != nil {
		span.RecordError(s.Err)
		span.SetStatus(codes.Error, s.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// FlushFinished implements observ.Hooks.
func (t *Tracing) FlushFinished(s observ.FlushStats) {
	v, ok := t.flushes.LoadAndDelete(s.ID)
	if !ok {
		return
	}
	span := trace.SpanFromContext(v.(context.Context))
	span.SetAttributes(
		attribute.Int("observ.rounds", s.Rounds),
		attribute.Int("observ.writes", s.Writes),
		attribute.Int("observ.notified", s.Notified),
		attribute.Int("observ.runs", s.Runs),
		attribute.Int("observ.skipped", s.Skipped),
	)
	if t.config.AttributeExtractor != nil {
		span.SetAttributes(t.config.AttributeExtractor(s)...)
	}
	if s.Err != nil {
		span.RecordError(s.Err)
		span.SetStatus(codes.Error, s.Err.Error())
		if errors.Is(s.Err, observ.ErrCascadeLimit) {
			span.SetAttributes(attribute.Bool("observ.cascade_limit", true))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SpanForFlush returns the open span of a flush in progress, or nil.
func (t *Tracing) SpanForFlush(id uint64) trace.Span {
	if v, ok := t.flushes.Load(id); ok {
		return trace.SpanFromContext(v.(context.Context))
	}
	return nil
}
