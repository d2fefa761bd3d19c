// Package xconf 加载 YAML、JSON 或内存键值表形式的配置，基于 koanf。
//
// NewFromMap 不按分隔符展开 key。配合 WithDelim("/")，"dlq.topic.suffix"
// 这类带点号的 key 保持为顶层条目，结构体字段可以直接写
// `koanf:"dlq.topic.suffix"`。
//
// Unmarshal 使用弱类型解码："3" 可解为 int，"true" 可解为 bool，
// "5s" 可解为 time.Duration。
package xconf
