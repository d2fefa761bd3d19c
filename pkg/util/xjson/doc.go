// Package xjson 提供命令行和调试输出用的 JSON 序列化。
//
// [PrettyE] 返回缩进后的 JSON 和错误，失败时错误包装 [ErrMarshal]。
// [Pretty] 只用于日志，失败时返回 "<marshal error: ...>" 标记串。
//
// 默认关闭 HTML 转义，死信头中的异常信息常带有 <、> 等字符，原样输出便于阅读。
package xjson
