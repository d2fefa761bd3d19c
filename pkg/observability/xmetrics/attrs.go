package xmetrics

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }

// Duration 导出为毫秒整数。
func Duration(key string, d time.Duration) Attr { return Attr{Key: key, Value: d} }

// 消息系统语义属性名。
const (
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
)

// Messaging 返回消息系统与目标主题两个属性。
func Messaging(system, destination string) []Attr {
	return []Attr{String(AttrMessagingSystem, system), String(AttrMessagingDestination, destination)}
}

func (a Attr) keyValue() (attribute.KeyValue, bool) {
	if a.Key == "" || a.Value == nil {
		return attribute.KeyValue{}, false
	}
	k := attribute.Key(a.Key)
	switch v := a.Value.(type) {
	case string:
		return k.String(v), true
	case bool:
		return k.Bool(v), true
	case int:
		return k.Int(v), true
	case int32:
		return k.Int64(int64(v)), true
	case int64:
		return k.Int64(v), true
	case float64:
		return k.Float64(v), true
	case time.Duration:
		return k.Int64(v.Milliseconds()), true
	default:
		return k.String(fmt.Sprint(v)), true
	}
}

func appendOTel(dst []attribute.KeyValue, attrs []Attr) []attribute.KeyValue {
	for _, a := range attrs {
		if kv, ok := a.keyValue(); ok {
			dst = append(dst, kv)
		}
	}
	return dst
}
