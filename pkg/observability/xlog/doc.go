// Package xlog 是死信组件使用的结构化日志，构建在 log/slog 之上。
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("info").
//		SetFormat(xlog.FormatJSON).
//		SetRotation("/var/log/app/dlq.log", xlog.RotationConfig{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// Builder 收集所有配置错误，由 Build 一并返回。日志方法的第一个参数总是
// context：其中带有效 OpenTelemetry Span 时，trace_id 和 span_id 会写入日志。
// With 派生的 Logger 与父级共享级别，SetLevel 对整棵派生树生效。
package xlog
