package xdlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xstream/pkg/config/xconf"
	"github.com/omeyang/xstream/pkg/observability/xlog"
)

// 处理器配置键。
const (
	ConfigApplicationID     = "application.id"
	ConfigTopicSuffix       = "dlq.topic.suffix"
	ConfigAutoCreateTopic   = "dlq.topic.auto.create.enabled"
	ConfigTopicPartitions   = "dlq.topic.partitions"
	ConfigReplicationFactor = "dlq.topic.replication.factor"
	ConfigStrict            = "dlq.strict.enabled"

	// ConfigProducerPrefix 以此为前缀的键去掉前缀后作为生产者属性。
	// 存在任意此类键时，处理器使用独立的 Collector。
	ConfigProducerPrefix = "dlq.producer."
)

// State 处理器生命周期状态。
type State int32

const (
	// StateUnconfigured 尚未调用 Configure。
	StateUnconfigured State = iota
	// StateConfigured 已配置，尚未持有 Collector。
	StateConfigured
	// StateActive 持有可用的 Collector。
	StateActive
	// StateClosed 已关闭，不可再用。
	StateClosed
)

// String 返回状态的大写名称。
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateConfigured:
		return "CONFIGURED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// ProcessorContext 运行时在回调中提供的处理上下文，只用于日志关联。
type ProcessorContext interface {
	TaskID() string
}

// HandlerOption 配置处理器。
type HandlerOption func(*handlerCore)

// WithRegistry 使用指定的注册表，默认 DefaultRegistry()。nil 被忽略。
func WithRegistry(r *Registry) HandlerOption {
	return func(h *handlerCore) {
		if r != nil {
			h.registry = r
		}
	}
}

// WithHandlerLogger 设置日志，nil 被忽略。
func WithHandlerLogger(l xlog.Logger) HandlerOption {
	return func(h *handlerCore) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock 设置失败时间戳的时钟，nil 被忽略。
func WithClock(now func() time.Time) HandlerOption {
	return func(h *handlerCore) {
		if now != nil {
			h.now = now
		}
	}
}

type handlerSettings struct {
	ApplicationID     string `koanf:"application.id"`
	TopicSuffix       string `koanf:"dlq.topic.suffix"`
	AutoCreate        *bool  `koanf:"dlq.topic.auto.create.enabled"`
	TopicPartitions   *int   `koanf:"dlq.topic.partitions"`
	ReplicationFactor *int   `koanf:"dlq.topic.replication.factor"`
	Strict            bool   `koanf:"dlq.strict.enabled"`
}

// handlerCore 两种处理器共享的状态机与处理流程，只有结果映射不同。
type handlerCore struct {
	kind     Kind
	registry *Registry
	logger   xlog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State

	// 以下字段在 Configure 中写入，之后只读。
	appID      string
	strict     bool
	autoCreate *bool
	extractor  TopicNameExtractor
	handle     *Handle
}

func newHandlerCore(kind Kind, opts []HandlerOption) *handlerCore {
	h := &handlerCore{kind: kind, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.registry == nil {
		h.registry = DefaultRegistry()
	}
	if h.logger == nil {
		h.logger = xlog.Default()
	}
	h.logger = h.logger.With(xlog.Component(componentName), attrKind(kind))
	return h
}

func (h *handlerCore) currentState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// configure 解析配置并进入 Configured；能拿到 Collector 时进入 Active。
func (h *handlerCore) configure(values map[string]any) error {
	cfg, err := xconf.NewFromMap(values, xconf.WithDelim("/"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	var s handlerSettings
	if err := cfg.Unmarshal("", &s); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if strings.TrimSpace(s.ApplicationID) == "" {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, ConfigApplicationID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateClosed:
		return ErrHandlerClosed
	case StateConfigured, StateActive:
		return fmt.Errorf("%w: handler already configured", ErrConfiguration)
	}

	h.appID = s.ApplicationID
	h.strict = s.Strict
	h.autoCreate = s.AutoCreate
	if s.TopicSuffix != "" {
		h.extractor = NewSuffixTopicNameExtractor(s.TopicSuffix)
	}

	if props := cfg.Prefixed(ConfigProducerPrefix); len(props) > 0 {
		handle, err := h.registry.Acquire(context.Background(), NewCollectorConfig(ownCollectorOptions(props, s)...))
		if err != nil {
			return err
		}
		h.handle = handle
		h.state = StateActive
		h.logger.Info(context.Background(), "dlq handler configured with own collector",
			attrIdentity(handle.Identity()), attrHandleID(handle.ID()))
		return nil
	}

	if ignored := sharedIgnoredKeys(s); len(ignored) > 0 {
		// 共享 Collector 的主题参数由注册方决定。
		h.logger.Warn(context.Background(), "dlq topic settings ignored without dlq.producer.* keys",
			slog.Any("keys", ignored))
	}
	h.state = StateConfigured
	if h.adoptDefaultLocked() {
		h.logger.Info(context.Background(), "dlq handler configured with shared collector",
			attrIdentity(h.handle.Identity()), attrHandleID(h.handle.ID()))
	}
	return nil
}

// sharedIgnoredKeys 返回共享模式下不起作用的主题配置键。
// auto.create 只能在共享模式下关闭，不能打开。
func sharedIgnoredKeys(s handlerSettings) []string {
	var keys []string
	if s.AutoCreate != nil && *s.AutoCreate {
		keys = append(keys, ConfigAutoCreateTopic)
	}
	if s.TopicPartitions != nil {
		keys = append(keys, ConfigTopicPartitions)
	}
	if s.ReplicationFactor != nil {
		keys = append(keys, ConfigReplicationFactor)
	}
	return keys
}

func ownCollectorOptions(props map[string]string, s handlerSettings) []CollectorOption {
	opts := []CollectorOption{WithProducerConfig(toConfigMap(props))}
	if s.TopicSuffix != "" {
		opts = append(opts, WithTopicSuffix(s.TopicSuffix))
	}
	if s.AutoCreate != nil {
		opts = append(opts, WithAutoCreateTopic(*s.AutoCreate))
	}
	if s.TopicPartitions != nil {
		opts = append(opts, WithTopicPartitions(*s.TopicPartitions))
	}
	if s.ReplicationFactor != nil {
		opts = append(opts, WithReplicationFactor(*s.ReplicationFactor))
	}
	return opts
}

// adoptDefaultLocked 尝试引用注册表的默认 Collector。调用方持有 h.mu。
func (h *handlerCore) adoptDefaultLocked() bool {
	handle, err := h.registry.AcquireDefault()
	if err != nil {
		return false
	}
	h.handle = handle
	h.state = StateActive
	return true
}

func (h *handlerCore) mustBeConfigured() {
	if h.currentState() == StateUnconfigured {
		panic(msgUnconfigured)
	}
}

const msgUnconfigured = "xdlq: handler used before Configure"

// collector 返回当前可用的 Collector。Configured 状态下延迟查找默认 Collector。
func (h *handlerCore) collector() (*Collector, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateUnconfigured:
		panic(msgUnconfigured)
	case StateClosed:
		return nil, ErrHandlerClosed
	case StateConfigured:
		if !h.adoptDefaultLocked() {
			return nil, ErrCollectorNotRegistered
		}
	}
	return h.handle.Collector(), nil
}

// process 构建失败上下文、推导主题、保障主题存在并发送。返回死信主题。
func (h *handlerCore) process(ctx context.Context, record *kafka.Message, cause error) (string, error) {
	c, err := h.collector()
	if err != nil {
		return "", err
	}

	fc := NewFailureContext(h.kind, record, h.appID, cause, h.now())
	extractor := h.extractor
	if extractor == nil {
		extractor = c.TopicNameExtractor()
	}
	topic := extractor.Extract(fc)
	if topic == "" {
		return "", fmt.Errorf("%w: %w", ErrSend, ErrEmptyTopic)
	}

	if h.autoCreate == nil || *h.autoCreate {
		if err := c.EnsureTopic(ctx, topic); err != nil {
			return topic, err
		}
	}
	return topic, c.Send(ctx, topic, record, fc)
}

// outcome 记录一次处理结果，返回是否应当视为失败。
func (h *handlerCore) outcome(ctx context.Context, pc ProcessorContext, record *kafka.Message, topic string, err error) (failed bool) {
	attrs := h.recordAttrs(pc, record)
	switch {
	case err == nil:
		h.logger.Debug(ctx, "record sent to dlq", append(attrs, attrDLQTopic(topic))...)
		return false
	case errors.Is(err, ErrCollectorNotRegistered):
		if h.strict {
			h.logger.Error(ctx, "no dlq collector registered, failing", append(attrs, xlog.Err(err))...)
			return true
		}
		h.logger.Warn(ctx, "no dlq collector registered, skipping dlq", append(attrs, xlog.Err(err))...)
		return false
	default:
		if topic != "" {
			attrs = append(attrs, attrDLQTopic(topic))
		}
		h.logger.Error(ctx, "failed to send record to dlq", append(attrs, xlog.Err(err))...)
		return true
	}
}

func (h *handlerCore) recordAttrs(pc ProcessorContext, record *kafka.Message) []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	if pc != nil {
		attrs = append(attrs, slog.String("task_id", pc.TaskID()))
	}
	if record != nil {
		if record.TopicPartition.Topic != nil {
			attrs = append(attrs, xlog.Topic(*record.TopicPartition.Topic))
		}
		attrs = append(attrs, xlog.Partition(record.TopicPartition.Partition))
		if h.kind == KindDeserialization {
			attrs = append(attrs, xlog.Offset(int64(record.TopicPartition.Offset)))
		}
	}
	return attrs
}

// close 释放句柄并进入 Closed，幂等。
func (h *handlerCore) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateClosed {
		return nil
	}
	h.state = StateClosed
	if h.handle == nil {
		return nil
	}
	handle := h.handle
	h.handle = nil
	if err := handle.Release(); err != nil && !errors.Is(err, ErrHandleReleased) {
		return err
	}
	return nil
}
