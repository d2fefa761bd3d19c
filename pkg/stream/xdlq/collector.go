package xdlq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xstream/internal/mqcore"
	"github.com/omeyang/xstream/pkg/observability/xlog"
	"github.com/omeyang/xstream/pkg/observability/xmetrics"
	"github.com/omeyang/xstream/pkg/resilience/xretry"
	"github.com/omeyang/xstream/pkg/util/xlru"
)

// Collector 共享的死信发送端。由 Registry 创建和释放，不直接构造。
//
// 所有方法并发安全，阻塞操作都在调用方 goroutine 上执行。
type Collector struct {
	identity string
	cfg      CollectorConfig
	client   Client
	admin    TopicAdmin
	logger   xlog.Logger

	// topics 已确认存在的死信主题。
	topics  *xlru.Set[string]
	group   singleflight.Group
	retryer *xretry.Retryer
	stats   *statsCollector

	closed      atomic.Bool
	disposeOnce sync.Once
	disposeErr  error
}

func newCollector(identity string, client Client, admin TopicAdmin, cfg CollectorConfig, logger xlog.Logger) (*Collector, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	topics, err := xlru.New[string](xlru.Config{Capacity: cfg.TopicCacheSize, TTL: cfg.TopicCacheTTL})
	if err != nil {
		return nil, fmt.Errorf("topic cache: %w", err)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = NoopTracer{}
	}
	if cfg.Observer == nil {
		cfg.Observer = xmetrics.NoopObserver{}
	}
	if cfg.TopicNameExtractor == nil {
		cfg.TopicNameExtractor = NewSuffixTopicNameExtractor(DefaultSuffix)
	}
	c := &Collector{
		identity: identity,
		cfg:      cfg,
		client:   client,
		admin:    admin,
		logger:   logger.With(xlog.Component(componentName), attrIdentity(identity)),
		topics:   topics,
		stats:    newStatsCollector(),
	}
	c.retryer = cfg.TopicRetryer
	if c.retryer == nil {
		c.retryer = defaultTopicRetryer(c.logger)
	}
	return c, nil
}

// Identity 返回注册表身份键。
func (c *Collector) Identity() string { return c.identity }

// TopicNameExtractor 返回配置的死信主题推导器。
func (c *Collector) TopicNameExtractor() TopicNameExtractor { return c.cfg.TopicNameExtractor }

// AutoCreateTopic 返回是否自动创建主题。
func (c *Collector) AutoCreateTopic() bool { return c.cfg.AutoCreateTopic }

// Send 构建增强记录并同步等待投递结果。
// 源记录的 key/value 原样复制；失败返回包装了 ErrSend 的错误。
func (c *Collector) Send(ctx context.Context, topic string, source *kafka.Message, fc FailureContext) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if topic == "" {
		return fmt.Errorf("%w: %w", ErrSend, ErrEmptyTopic)
	}
	if c.closed.Load() {
		return ErrCollectorClosed
	}

	ctx = mqcore.ContinueTrace(ctx, c.cfg.Tracer, fc.Headers)
	ctx, span := xmetrics.Start(ctx, c.cfg.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "send",
		Kind:      xmetrics.KindProducer,
		Attrs:     dlqAttrs(topic, fc),
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	msg := c.enrich(ctx, topic, source, fc)
	produce := func() error { return c.produce(ctx, msg) }
	if c.cfg.Breaker != nil {
		err = c.cfg.Breaker.Do(ctx, produce)
	} else {
		err = produce()
	}
	if err != nil {
		c.stats.incFailed()
		return fmt.Errorf("%w: %s: %w", ErrSend, topic, err)
	}
	c.stats.incSent(topic)
	return nil
}

// enrich 生成发送记录，追踪消息头插在源消息头与失败元数据之间，
// 保证失败元数据始终位于末尾。
func (c *Collector) enrich(ctx context.Context, topic string, source *kafka.Message, fc FailureContext) *kafka.Message {
	msg := NewEnrichedRecord(topic, source, fc)
	traced := mqcore.TraceHeaders(ctx, c.cfg.Tracer)
	if len(traced) == 0 {
		return msg
	}
	n := len(fc.Headers)
	msg.Headers = append(mqcore.SpliceTraceHeaders(msg.Headers[:n], traced), msg.Headers[n:]...)
	return msg
}

func (c *Collector) produce(ctx context.Context, msg *kafka.Message) error {
	delivery := make(chan kafka.Event, 1)
	if err := c.client.Produce(msg, delivery); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		switch e := ev.(type) {
		case *kafka.Message:
			return e.TopicPartition.Error
		case kafka.Error:
			return e
		default:
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
	}
}

// Health 检查 Collector 是否可用：未释放，且熔断器（若配置）未打开。
func (c *Collector) Health(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCollectorClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if c.cfg.Breaker != nil {
		return c.cfg.Breaker.Allow()
	}
	return nil
}

// Stats 返回统计快照。
func (c *Collector) Stats() CollectorStats {
	s := c.stats.get()
	cache := c.topics.Counters()
	s.TopicCacheHits = cache.Hits
	s.TopicCacheMisses = cache.Misses
	s.CachedTopics = cache.Len
	return s
}

// Dispose 刷新并关闭底层客户端，只执行一次，之后的调用返回第一次的结果。
// ctx 的截止时间会收紧 FlushTimeout。
func (c *Collector) Dispose(ctx context.Context) error {
	c.disposeOnce.Do(func() {
		c.closed.Store(true)
		c.disposeErr = c.dispose(ctx)
	})
	return c.disposeErr
}

func (c *Collector) dispose(ctx context.Context) error {
	defer c.topics.Close()

	// 管理端可能派生自生产者，必须先于生产者关闭。
	if c.admin != nil {
		c.admin.Close()
	}
	if d, ok := c.client.(Disposer); ok {
		return d.Dispose(ctx)
	}

	timeout := c.cfg.FlushTimeout
	if ctx != nil {
		if deadline, ok := ctx.Deadline(); ok {
			timeout = min(timeout, max(time.Until(deadline), 0))
		}
	}
	remaining := c.client.Flush(int(timeout.Milliseconds()))
	c.client.Close()
	if remaining > 0 {
		return fmt.Errorf("%w: %d records still in queue", ErrFlushTimeout, remaining)
	}
	return nil
}

// CollectorStats Collector 统计信息。
type CollectorStats struct {
	// Sent 成功投递的死信记录数。
	Sent int64 `json:"sent"`
	// Failed 发送失败的记录数。
	Failed int64 `json:"failed"`
	// TopicsCreated 由本 Collector 确认（新建或已存在）的主题数。
	TopicsCreated int64 `json:"topics_created"`
	// TopicCreationFailures 主题创建失败次数。
	TopicCreationFailures int64 `json:"topic_creation_failures"`

	TopicCacheHits   uint64 `json:"topic_cache_hits"`
	TopicCacheMisses uint64 `json:"topic_cache_misses"`
	CachedTopics     int    `json:"cached_topics"`

	// LastSendTime 最近一次成功投递的时间。
	LastSendTime time.Time `json:"last_send_time,omitempty"`
	// ByTopic 按死信主题分组的成功投递数。
	ByTopic map[string]int64 `json:"by_topic,omitempty"`
}

type statsCollector struct {
	mu    sync.Mutex
	stats CollectorStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{stats: CollectorStats{ByTopic: make(map[string]int64)}}
}

func (s *statsCollector) incSent(topic string) {
	s.mu.Lock()
	s.stats.Sent++
	s.stats.LastSendTime = time.Now()
	s.stats.ByTopic[topic]++
	s.mu.Unlock()
}

func (s *statsCollector) incFailed() {
	s.mu.Lock()
	s.stats.Failed++
	s.mu.Unlock()
}

func (s *statsCollector) incTopicCreated() {
	s.mu.Lock()
	s.stats.TopicsCreated++
	s.mu.Unlock()
}

func (s *statsCollector) incTopicFailure() {
	s.mu.Lock()
	s.stats.TopicCreationFailures++
	s.mu.Unlock()
}

func (s *statsCollector) get() CollectorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.ByTopic = make(map[string]int64, len(s.stats.ByTopic))
	for k, v := range s.stats.ByTopic {
		out.ByTopic[k] = v
	}
	return out
}
