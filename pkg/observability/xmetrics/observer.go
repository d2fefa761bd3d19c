package xmetrics

import (
	"context"
	"strconv"
)

// Kind Span 类型。
type Kind uint8

const (
	KindInternal Kind = iota
	// KindClient 对外部系统的管理请求，例如创建主题。
	KindClient
	// KindProducer 向消息系统写入记录。
	KindProducer
)

var kindNames = [...]string{"internal", "client", "producer"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind-" + strconv.Itoa(int(k))
}

// Outcome 操作结果，作为指标标签。
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Attr 键值属性。Value 支持 string、bool、整数、float64 和 time.Duration，
// 其他类型按 fmt.Sprint 导出，nil 被丢弃。
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 开始 Span 的参数。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result Span 结束时的结果。Outcome 为空时 Err 非 nil 视为 OutcomeError。
type Result struct {
	Err     error
	Outcome Outcome
	Attrs   []Attr
}

func (r Result) outcome() Outcome {
	switch {
	case r.Outcome != "":
		return r.Outcome
	case r.Err != nil:
		return OutcomeError
	default:
		return OutcomeOK
	}
}

// Span 进行中的观测，End 只生效一次。
type Span interface {
	End(Result)
}

// Observer 创建 Span。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不记录任何数据。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空 Span。
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 通过 observer 开始 Span，返回值永不为 nil。
// observer 为 nil，或其实现返回了 nil，都按 Noop 处理。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	next, span := observer.Start(ctx, opts)
	if next == nil {
		next = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return next, span
}
