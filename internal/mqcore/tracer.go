package mqcore

import "context"

// Tracer 在 map 载体上读写追踪信息，键使用 traceparent、tracestate 等 W3C 名称。
type Tracer interface {
	Inject(ctx context.Context, carrier map[string]string)
	Extract(carrier map[string]string) context.Context
}

// NoopTracer 不写入任何追踪头，Extract 返回 Background。
type NoopTracer struct{}

func (NoopTracer) Inject(context.Context, map[string]string) {}

func (NoopTracer) Extract(map[string]string) context.Context { return context.Background() }

var _ Tracer = NoopTracer{}
