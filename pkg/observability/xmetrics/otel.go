package xmetrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	MetricOperationTotal    = "xstream.operation.total"
	MetricOperationDuration = "xstream.operation.duration"

	defaultScope = "github.com/omeyang/xstream/pkg/observability/xmetrics"
	unnamed      = "unknown"
)

// Option 配置 OTel Observer。
type Option func(*otelOptions)

type otelOptions struct {
	scope  string
	tracer trace.TracerProvider
	meter  metric.MeterProvider
}

// WithInstrumentationName 设置 Tracer 与 Meter 的 scope 名，空串被忽略。
func WithInstrumentationName(name string) Option {
	return func(o *otelOptions) {
		if name != "" {
			o.scope = name
		}
	}
}

// WithTracerProvider 默认使用 otel 全局 TracerProvider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *otelOptions) {
		if tp != nil {
			o.tracer = tp
		}
	}
}

// WithMeterProvider 默认使用 otel 全局 MeterProvider。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *otelOptions) {
		if mp != nil {
			o.meter = mp
		}
	}
}

type instruments struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(m metric.Meter) (instruments, error) {
	total, err := m.Int64Counter(MetricOperationTotal,
		metric.WithDescription("operations finished, by outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return instruments{}, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricOperationTotal, err)
	}
	duration, err := m.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		return instruments{}, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricOperationDuration, err)
	}
	return instruments{total: total, duration: duration}, nil
}

func (in instruments) record(ctx context.Context, component, operation string, outcome Outcome, elapsed time.Duration) {
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("component", component),
		attribute.String("operation", operation),
		attribute.String("outcome", string(outcome)),
	))
	in.total.Add(ctx, 1, set)
	in.duration.Record(ctx, elapsed.Seconds(), set)
}

type otelObserver struct {
	tracer trace.Tracer
	inst   instruments
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer。
func NewOTelObserver(opts ...Option) (Observer, error) {
	o := otelOptions{scope: defaultScope, tracer: otel.GetTracerProvider(), meter: otel.GetMeterProvider()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	inst, err := newInstruments(o.meter.Meter(o.scope))
	if err != nil {
		return nil, err
	}
	return &otelObserver{tracer: o.tracer.Tracer(o.scope), inst: inst}, nil
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &otelSpan{
		inst:      o.inst,
		component: nonEmpty(opts.Component),
		operation: nonEmpty(opts.Operation),
		started:   time.Now(),
	}
	attrs := appendOTel([]attribute.KeyValue{
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
	}, opts.Attrs)
	ctx, s.span = o.tracer.Start(ctx, s.component+"."+s.operation,
		trace.WithSpanKind(opts.Kind.spanKind()),
		trace.WithAttributes(attrs...))
	s.ctx = ctx
	return ctx, s
}

type otelSpan struct {
	span      trace.Span
	ctx       context.Context
	inst      instruments
	component string
	operation string
	started   time.Time
	ended     atomic.Bool
}

func (s *otelSpan) End(r Result) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	outcome := r.outcome()
	if r.Err != nil {
		s.span.RecordError(r.Err)
	}
	switch {
	case outcome != OutcomeError:
		s.span.SetStatus(codes.Ok, "")
	case r.Err != nil:
		s.span.SetStatus(codes.Error, r.Err.Error())
	default:
		s.span.SetStatus(codes.Error, "operation failed")
	}
	if kvs := appendOTel(nil, r.Attrs); len(kvs) > 0 {
		s.span.SetAttributes(kvs...)
	}
	s.span.End()

	// 调用方 ctx 可能已取消，指标照常记录。
	s.inst.record(context.WithoutCancel(s.ctx), s.component, s.operation, outcome, time.Since(s.started))
}

func nonEmpty(s string) string {
	if s == "" {
		return unnamed
	}
	return s
}

func (k Kind) spanKind() trace.SpanKind {
	switch k {
	case KindClient:
		return trace.SpanKindClient
	case KindProducer:
		return trace.SpanKindProducer
	default:
		return trace.SpanKindInternal
	}
}
