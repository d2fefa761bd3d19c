package xdlq

import (
	"log/slog"

	"github.com/omeyang/xstream/pkg/observability/xmetrics"
)

const componentName = "xdlq"

// 日志字段名。
const (
	keyDLQTopic = "dlq_topic"
	keyIdentity = "identity"
	keyHandleID = "handle_id"
	keyKind     = "failure_kind"
	keyRefs     = "refs"
)

func dlqAttrs(topic string, fc FailureContext) []xmetrics.Attr {
	attrs := xmetrics.Messaging("kafka", topic)
	if fc.Kind != 0 {
		attrs = append(attrs, xmetrics.String("dlq.failure.kind", fc.Kind.String()))
	}
	if fc.Topic != "" {
		attrs = append(attrs,
			xmetrics.String("dlq.source.topic", fc.Topic),
			xmetrics.Int("dlq.source.partition", int(fc.Partition)),
		)
	}
	return attrs
}

func attrDLQTopic(topic string) slog.Attr { return slog.String(keyDLQTopic, topic) }

func attrIdentity(identity string) slog.Attr { return slog.String(keyIdentity, identity) }

func attrHandleID(id string) slog.Attr { return slog.String(keyHandleID, id) }

func attrKind(k Kind) slog.Attr { return slog.String(keyKind, k.String()) }

func attrRefs(n int) slog.Attr { return slog.Int(keyRefs, n) }
