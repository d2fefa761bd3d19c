package xdlq

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xstream/pkg/observability/xlog"
	"github.com/omeyang/xstream/pkg/resilience/xretry"
)

// fakeClient 内存中的 Client，投递结果同步写入 deliveryChan。
type fakeClient struct {
	mu      sync.Mutex
	records []*kafka.Message

	produceErr     error
	deliveryErr    func(msg *kafka.Message) error
	flushRemaining int

	produced atomic.Int32
	flushed  atomic.Int32
	closed   atomic.Int32
	onClose  func()
}

func (f *fakeClient) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	f.produced.Add(1)
	if f.produceErr != nil {
		return f.produceErr
	}
	f.mu.Lock()
	f.records = append(f.records, msg)
	offset := len(f.records) - 1
	f.mu.Unlock()

	var err error
	if f.deliveryErr != nil {
		err = f.deliveryErr(msg)
	}
	if deliveryChan != nil {
		deliveryChan <- &kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     msg.TopicPartition.Topic,
				Partition: 0,
				Offset:    kafka.Offset(offset),
				Error:     err,
			},
		}
	}
	return nil
}

func (f *fakeClient) Flush(int) int {
	f.flushed.Add(1)
	return f.flushRemaining
}

func (f *fakeClient) Close() {
	f.closed.Add(1)
	if f.onClose != nil {
		f.onClose()
	}
}

func (f *fakeClient) sent() []*kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*kafka.Message, len(f.records))
	copy(out, f.records)
	return out
}

// knownTopics 模拟 Broker 未开启自动建主题：只接受已知主题。
func knownTopics(topics ...string) func(*kafka.Message) error {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return func(msg *kafka.Message) error {
		if set[*msg.TopicPartition.Topic] {
			return nil
		}
		return kafka.NewError(kafka.ErrUnknownTopicOrPart, "Broker: Unknown topic or partition", false)
	}
}

// fakeBroker 多个 fakeAdmin 共享的主题集合，用于模拟跨进程的创建竞争。
type fakeBroker struct {
	mu      sync.Mutex
	topics  map[string]bool
	creates atomic.Int32
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{topics: make(map[string]bool)}
}

func (b *fakeBroker) has(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topics[topic]
}

// fakeAdmin 按 fakeBroker 的状态返回创建结果，已存在时返回 ErrTopicAlreadyExists。
type fakeAdmin struct {
	broker *fakeBroker
	delay  time.Duration
	closed atomic.Int32
}

func (a *fakeAdmin) CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, _ ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	a.broker.creates.Add(1)
	a.broker.mu.Lock()
	defer a.broker.mu.Unlock()
	results := make([]kafka.TopicResult, 0, len(topics))
	for _, spec := range topics {
		if a.broker.topics[spec.Topic] {
			results = append(results, kafka.TopicResult{
				Topic: spec.Topic,
				Error: kafka.NewError(kafka.ErrTopicAlreadyExists, "Topic '"+spec.Topic+"' already exists.", false),
			})
			continue
		}
		a.broker.topics[spec.Topic] = true
		results = append(results, kafka.TopicResult{Topic: spec.Topic})
	}
	return results, nil
}

func (a *fakeAdmin) Close() { a.closed.Add(1) }

func discardLogger(t *testing.T) xlog.Logger {
	t.Helper()
	l, _ := bufferLogger(t)
	return l
}

// bufferLogger 返回写入内存的 JSON 日志。
func bufferLogger(t *testing.T) (xlog.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	l, cleanup, err := xlog.New().SetOutput(buf).SetFormat("json").SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return l, buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	base := []RegistryOption{WithRegistryLogger(discardLogger(t))}
	r, err := NewRegistry(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(r.Clear)
	return r
}

// noDelayRetryer 与默认策略相同的分类重试，去掉退避。
func noDelayRetryer() *xretry.Retryer {
	return xretry.New(
		xretry.WithAttempts(topicCreateAttempts),
		xretry.WithClassifier(isRetriableAdminError),
		xretry.WithBackoff(xretry.Constant(0)),
	)
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func strPtr(s string) *string { return &s }

func sourceRecord(topic string, partition int32, offset int64) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     strPtr(topic),
			Partition: partition,
			Offset:    kafka.Offset(offset),
		},
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: []kafka.Header{{Key: "test-header-key", Value: []byte("test-header-value")}},
	}
}

// recordTooLargeError 测试用的具名错误类型。
type recordTooLargeError struct {
	msg string
}

func (e *recordTooLargeError) Error() string { return e.msg }

type stubProcessorContext string

func (s stubProcessorContext) TaskID() string { return string(s) }
