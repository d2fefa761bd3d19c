// Package observability 汇集死信组件使用的日志与追踪子包。
//
//   - xlog: 基于 log/slog 的结构化日志，支持动态级别与 lumberjack 文件轮转
//   - xmetrics: Span 与操作计数的统一入口，默认 Noop，可接入 OpenTelemetry
package observability
