// Package xmetrics 为死信组件提供 Span 与操作指标的统一入口。
//
// 调用方只依赖 Observer、Span 和 Attr。未配置时使用 NoopObserver，
// 需要接入 OpenTelemetry 时用 NewOTelObserver：
//
//	obs, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp))
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xdlq",
//		Operation: "send",
//		Kind:      xmetrics.KindProducer,
//	})
//	defer func() { span.End(xmetrics.Result{Err: err}) }()
//
// Span 名为 "<component>.<operation>"。每次 End 记录一次
// xstream.operation.total 计数和 xstream.operation.duration 耗时（秒），
// 指标标签为 component、operation、outcome。
package xmetrics
