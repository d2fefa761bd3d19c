// Package xbreaker 是 sony/gobreaker/v2 的薄封装，用于保护死信发送。
//
// 熔断拒绝统一返回 *OpenError，它的 Retryable() 为 false，
// 与 xretry 组合时不会被重试。
package xbreaker
