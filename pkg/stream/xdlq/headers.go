package xdlq

import (
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// 失败元数据消息头名称，构成与下游消费者之间的线上契约。
const (
	HeaderApplicationID       = "error.application.id"
	HeaderExceptionClass      = "error.exception.class.name"
	HeaderExceptionMessage    = "error.exception.message"
	HeaderExceptionStacktrace = "error.exception.stacktrace"
	HeaderTimestamp           = "error.timestamp"
	HeaderType                = "error.type"
	HeaderRecordTopic         = "error.record.topic"
	HeaderRecordPartition     = "error.record.partition"
	HeaderRecordOffset        = "error.record.offset"
)

// Metadata 从消息头解码出的失败元数据。
type Metadata struct {
	ApplicationID    string    `json:"application_id"`
	ExceptionClass   string    `json:"exception_class"`
	ExceptionMessage string    `json:"exception_message"`
	Stacktrace       string    `json:"stacktrace,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Kind             Kind      `json:"-"`
	Type             string    `json:"type"`
	Topic            string    `json:"topic"`
	Partition        int32     `json:"partition"`
	Offset           int64     `json:"offset,omitempty"`
	HasOffset        bool      `json:"has_offset"`
}

// EncodeHeaders 返回源消息头副本加上失败元数据消息头。纯函数，不会失败。
func EncodeHeaders(fc FailureContext) []kafka.Header {
	failure := FailureHeaders(fc)
	out := make([]kafka.Header, 0, len(fc.Headers)+len(failure))
	out = append(out, copyHeaders(fc.Headers)...)
	return append(out, failure...)
}

// FailureHeaders 只返回失败元数据消息头，顺序固定。
func FailureHeaders(fc FailureContext) []kafka.Header {
	headers := make([]kafka.Header, 0, 9)
	add := func(key, value string) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	add(HeaderApplicationID, fc.ApplicationID)
	add(HeaderExceptionClass, fc.ExceptionClass)
	add(HeaderExceptionMessage, fc.ExceptionMessage)
	add(HeaderExceptionStacktrace, fc.Stacktrace)
	add(HeaderTimestamp, strconv.FormatInt(fc.Timestamp.UnixMilli(), 10))
	add(HeaderType, fc.Kind.String())
	add(HeaderRecordTopic, fc.Topic)
	add(HeaderRecordPartition, strconv.FormatInt(int64(fc.Partition), 10))
	if fc.HasOffset {
		add(HeaderRecordOffset, strconv.FormatInt(fc.Offset, 10))
	}
	return headers
}

// DecodeHeaders 从消息头解析失败元数据，同名消息头取最后一次出现的值。
// 缺少 error.type 或数值字段无法解析时返回 ErrMalformedHeader。
func DecodeHeaders(headers []kafka.Header) (Metadata, error) {
	last := make(map[string]string, len(headers))
	for _, h := range headers {
		last[h.Key] = string(h.Value)
	}

	var md Metadata
	typ, ok := last[HeaderType]
	if !ok {
		return md, fmt.Errorf("%w: missing %s", ErrMalformedHeader, HeaderType)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return md, err
	}
	md.Kind = kind
	md.Type = typ
	md.ApplicationID = last[HeaderApplicationID]
	md.ExceptionClass = last[HeaderExceptionClass]
	md.ExceptionMessage = last[HeaderExceptionMessage]
	md.Stacktrace = last[HeaderExceptionStacktrace]
	md.Topic = last[HeaderRecordTopic]

	if v, ok := last[HeaderTimestamp]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return md, fmt.Errorf("%w: %s=%q", ErrMalformedHeader, HeaderTimestamp, v)
		}
		md.Timestamp = time.UnixMilli(ms)
	}
	if v, ok := last[HeaderRecordPartition]; ok {
		p, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return md, fmt.Errorf("%w: %s=%q", ErrMalformedHeader, HeaderRecordPartition, v)
		}
		md.Partition = int32(p)
	}
	if v, ok := last[HeaderRecordOffset]; ok {
		off, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return md, fmt.Errorf("%w: %s=%q", ErrMalformedHeader, HeaderRecordOffset, v)
		}
		md.Offset = off
		md.HasOffset = true
	}
	return md, nil
}

// NewEnrichedRecord 构建发往死信主题的记录：key/value 原样复制，
// 分区交给分区器，消息头为 EncodeHeaders 的结果。
func NewEnrichedRecord(topic string, source *kafka.Message, fc FailureContext) *kafka.Message {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Headers: EncodeHeaders(fc),
	}
	if source != nil {
		msg.Key = source.Key
		msg.Value = source.Value
	}
	return msg
}
