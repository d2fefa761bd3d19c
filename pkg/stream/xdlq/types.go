package xdlq

import "github.com/omeyang/xstream/internal/mqcore"

// Tracer 定义链路追踪接口。
type Tracer = mqcore.Tracer

// NoopTracer 是 Tracer 的空实现。
type NoopTracer = mqcore.NoopTracer

// OTelTracer 基于 OpenTelemetry 的链路追踪实现。
type OTelTracer = mqcore.OTelTracer

// OTelTracerOption 定义 OTelTracer 的配置选项。
type OTelTracerOption = mqcore.OTelTracerOption

// WithOTelPropagator 设置 OTelTracer 使用的传播器。
var WithOTelPropagator = mqcore.WithOTelPropagator

// NewOTelTracer 创建 OTelTracer。
var NewOTelTracer = mqcore.NewOTelTracer
