package xlog

import "log/slog"

// 通用字段名。
const (
	KeyError     = "error"
	KeyComponent = "component"
	KeyTopic     = "topic"
	KeyPartition = "partition"
	KeyOffset    = "offset"
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
)

// Err 错误字段。err 为 nil 时返回空属性，slog 会忽略它。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func Topic(name string) slog.Attr { return slog.String(KeyTopic, name) }

func Partition(p int32) slog.Attr { return slog.Int(KeyPartition, int(p)) }

func Offset(o int64) slog.Attr { return slog.Int64(KeyOffset, o) }
