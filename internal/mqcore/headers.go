package mqcore

import (
	"context"
	"slices"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeaders 返回 ctx 的追踪头，按键排序。tracer 为 nil 或没有追踪信息时返回 nil。
func TraceHeaders(ctx context.Context, tracer Tracer) []kafka.Header {
	if tracer == nil {
		return nil
	}
	carrier := make(map[string]string)
	tracer.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	keys := make([]string, 0, len(carrier))
	for k := range carrier {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(carrier[k])})
	}
	return out
}

// SpliceTraceHeaders 去掉 headers 中与 traced 同名的条目，再把 traced 追加到末尾。
// 返回新切片，不修改入参。
func SpliceTraceHeaders(headers, traced []kafka.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+len(traced))
	for _, h := range headers {
		if !slices.ContainsFunc(traced, func(t kafka.Header) bool { return t.Key == h.Key }) {
			out = append(out, h)
		}
	}
	return append(out, traced...)
}

// ContinueTrace ctx 已有有效 Span 时原样返回；否则尝试从源记录头恢复远端 Span，
// 使死信发送挂在源记录的链路下。同名头以最后一次出现为准。
func ContinueTrace(ctx context.Context, tracer Tracer, headers []kafka.Header) context.Context {
	if tracer == nil || len(headers) == 0 || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	carrier := make(map[string]string, len(headers))
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	sc := trace.SpanContextFromContext(tracer.Extract(carrier))
	if !sc.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}
