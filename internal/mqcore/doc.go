// Package mqcore 提供 pkg/stream 下各包共享的 Kafka 消息头追踪工具。
//
// Tracer 在 map 载体上注入和提取 W3C Trace Context；headers.go 负责把载体
// 与 []kafka.Header 互相转换：TraceHeaders 生成有序的追踪头，SpliceTraceHeaders
// 用新追踪头替换记录中的旧值，ContinueTrace 在调用方没有活动 Span 时沿用
// 源记录头里的远端追踪上下文。
package mqcore
