package mqcore

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// OTelTracerOption 配置 OTelTracer。
type OTelTracerOption func(*OTelTracer)

// WithOTelPropagator 替换默认传播器，nil 被忽略。
func WithOTelPropagator(p propagation.TextMapPropagator) OTelTracerOption {
	return func(t *OTelTracer) {
		if p != nil {
			t.propagator = p
		}
	}
}

// OTelTracer 用 OpenTelemetry 传播器实现 Tracer，默认 TraceContext 加 Baggage。
type OTelTracer struct {
	propagator propagation.TextMapPropagator
}

// NewOTelTracer 创建 OTelTracer。
func NewOTelTracer(opts ...OTelTracerOption) OTelTracer {
	t := OTelTracer{
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&t)
		}
	}
	return t
}

// Inject 把 ctx 中的追踪上下文写入 carrier。carrier 为 nil 时忽略。
func (t OTelTracer) Inject(ctx context.Context, carrier map[string]string) {
	if carrier == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.propagator.Inject(ctx, propagation.MapCarrier(carrier))
}

// Extract 从 carrier 读取远端追踪上下文。
func (t OTelTracer) Extract(carrier map[string]string) context.Context {
	if carrier == nil {
		return context.Background()
	}
	return t.propagator.Extract(context.Background(), propagation.MapCarrier(carrier))
}

var _ Tracer = OTelTracer{}
