package xdlq

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Kind 失败类型。
type Kind int

const (
	// KindDeserialization 消费侧反序列化失败，带有已提交的偏移量。
	KindDeserialization Kind = iota + 1

	// KindProduction 生产侧失败，没有偏移量。
	KindProduction
)

// String 返回 error.type 消息头使用的文本。
func (k Kind) String() string {
	switch k {
	case KindDeserialization:
		return "DESERIALIZATION"
	case KindProduction:
		return "PRODUCTION"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind 解析 error.type 文本。
func ParseKind(s string) (Kind, error) {
	switch s {
	case "DESERIALIZATION":
		return KindDeserialization, nil
	case "PRODUCTION":
		return KindProduction, nil
	default:
		return 0, fmt.Errorf("%w: unknown error type %q", ErrMalformedHeader, s)
	}
}

// FailureContext 一次失败的完整描述，按值传递，构造后不再修改。
type FailureContext struct {
	Topic     string
	Partition int32

	// Offset 仅在 HasOffset 为 true 时有效。
	Offset    int64
	HasOffset bool

	ApplicationID    string
	ExceptionClass   string
	ExceptionMessage string
	Stacktrace       string
	Timestamp        time.Time
	Kind             Kind

	// Headers 源记录消息头的副本。
	Headers []kafka.Header
}

// NewFailureContext 由失败记录和错误构建 FailureContext。
// 反序列化失败携带源记录偏移量，生产失败不携带。
func NewFailureContext(kind Kind, record *kafka.Message, appID string, cause error, now time.Time) FailureContext {
	fc := FailureContext{
		ApplicationID: appID,
		Timestamp:     now,
		Kind:          kind,
	}
	if cause != nil {
		fc.ExceptionClass = fmt.Sprintf("%T", cause)
		fc.ExceptionMessage = cause.Error()
		fc.Stacktrace = renderStacktrace(cause)
	}
	if record == nil {
		return fc
	}
	if record.TopicPartition.Topic != nil {
		fc.Topic = *record.TopicPartition.Topic
	}
	fc.Partition = record.TopicPartition.Partition
	if kind == KindDeserialization {
		fc.Offset = int64(record.TopicPartition.Offset)
		fc.HasOffset = true
	}
	fc.Headers = copyHeaders(record.Headers)
	return fc
}

func copyHeaders(headers []kafka.Header) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, len(headers))
	for i, h := range headers {
		out[i] = kafka.Header{Key: h.Key, Value: slices.Clone(h.Value)}
	}
	return out
}

// maxStackDepth 限制展开层数，防止自引用的错误链无限展开。
const maxStackDepth = 32

type stackTracer interface {
	StackTrace() []byte
}

type stacker interface {
	Stack() []byte
}

// renderStacktrace 把错误链渲染为文本：每层一行 "<类型>: <消息>"，
// errors.Join 的分支缩进一级；错误自带调用栈时追加在该层之后。
func renderStacktrace(err error) string {
	var b strings.Builder
	writeChain(&b, err, 0, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeChain(b *strings.Builder, err error, indent, depth int) {
	for ; err != nil && depth < maxStackDepth; depth++ {
		prefix := strings.Repeat("\t", indent)
		fmt.Fprintf(b, "%s%T: %s\n", prefix, err, err.Error())
		if st := ownStack(err); st != "" {
			for line := range strings.Lines(st) {
				b.WriteString(prefix)
				b.WriteString("\t")
				b.WriteString(strings.TrimRight(line, "\n"))
				b.WriteString("\n")
			}
		}

		if joined, ok := err.(interface{ Unwrap() []error }); ok { //nolint:errorlint // 只展开当前层
			for _, e := range joined.Unwrap() {
				writeChain(b, e, indent+1, depth+1)
			}
			return
		}
		err = errors.Unwrap(err)
	}
}

func ownStack(err error) string {
	switch s := err.(type) { //nolint:errorlint // 只取当前层自带的栈
	case stackTracer:
		return string(s.StackTrace())
	case stacker:
		return string(s.Stack())
	default:
		return ""
	}
}
