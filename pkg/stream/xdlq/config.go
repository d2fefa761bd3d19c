package xdlq

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xstream/pkg/config/xconf"
	"github.com/omeyang/xstream/pkg/observability/xmetrics"
	"github.com/omeyang/xstream/pkg/resilience/xbreaker"
	"github.com/omeyang/xstream/pkg/resilience/xretry"
)

// 默认值。
const (
	// DefaultTopicPartitions 与 DefaultReplicationFactor 为 -1 表示使用 Broker 默认值。
	DefaultTopicPartitions   = -1
	DefaultReplicationFactor = -1

	DefaultTopicCacheSize = 1024
	DefaultTopicCacheTTL  = 10 * time.Minute
	DefaultFlushTimeout   = 10 * time.Second
)

// CollectorConfig Collector 配置。ProducerConfig 与 Client 二选一。
//
// 身份键只由 Client 或 ProducerConfig 决定：身份相同的两份配置共享同一个
// Collector，其余字段以首次创建时为准。
type CollectorConfig struct {
	// ProducerConfig 交给 ClientFactory 的 librdkafka 属性。
	ProducerConfig kafka.ConfigMap

	// Client 调用方构建的发送端，必须是指针类型。设置后忽略 ProducerConfig。
	// 注册表接管其生命周期，条目释放时一并关闭。
	Client Client

	// Admin 与 Client 配套的管理端。Client 为 *kafka.Producer 且 Admin 为 nil 时自动派生。
	Admin TopicAdmin

	AutoCreateTopic   bool
	TopicPartitions   int
	ReplicationFactor int

	TopicNameExtractor TopicNameExtractor

	// TopicCacheSize 与 TopicCacheTTL 控制已确认存在的主题缓存。
	TopicCacheSize int
	TopicCacheTTL  time.Duration

	// FlushTimeout 释放时等待未投递记录的时间。
	FlushTimeout time.Duration

	// TopicRetryer 创建主题的重试执行器，nil 时使用默认的指数退避。
	TopicRetryer *xretry.Retryer

	// Breaker 可选的发送熔断器。
	Breaker *xbreaker.Breaker

	Tracer   Tracer
	Observer xmetrics.Observer
}

// CollectorOption 配置 CollectorConfig。
type CollectorOption func(*CollectorConfig)

// NewCollectorConfig 创建带默认值的配置：自动建主题开启，后缀 DefaultSuffix。
func NewCollectorConfig(opts ...CollectorOption) CollectorConfig {
	cfg := CollectorConfig{
		AutoCreateTopic:    true,
		TopicPartitions:    DefaultTopicPartitions,
		ReplicationFactor:  DefaultReplicationFactor,
		TopicNameExtractor: NewSuffixTopicNameExtractor(DefaultSuffix),
		TopicCacheSize:     DefaultTopicCacheSize,
		TopicCacheTTL:      DefaultTopicCacheTTL,
		FlushTimeout:       DefaultFlushTimeout,
		Tracer:             NoopTracer{},
		Observer:           xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithProducerConfig 设置生产者属性。传入的表会被复制。
func WithProducerConfig(props kafka.ConfigMap) CollectorOption {
	return func(c *CollectorConfig) {
		c.ProducerConfig = make(kafka.ConfigMap, len(props))
		for k, v := range props {
			c.ProducerConfig[k] = v
		}
	}
}

// WithClient 使用调用方构建的发送端和管理端，admin 可以为 nil。
func WithClient(client Client, admin TopicAdmin) CollectorOption {
	return func(c *CollectorConfig) {
		c.Client = client
		c.Admin = admin
	}
}

// WithAutoCreateTopic 设置是否自动创建死信主题。
func WithAutoCreateTopic(enabled bool) CollectorOption {
	return func(c *CollectorConfig) {
		c.AutoCreateTopic = enabled
	}
}

// WithTopicPartitions 设置新建主题的分区数，-1 表示 Broker 默认值。
func WithTopicPartitions(n int) CollectorOption {
	return func(c *CollectorConfig) {
		c.TopicPartitions = n
	}
}

// WithReplicationFactor 设置新建主题的副本数，-1 表示 Broker 默认值。
func WithReplicationFactor(n int) CollectorOption {
	return func(c *CollectorConfig) {
		c.ReplicationFactor = n
	}
}

// WithTopicNameExtractor 设置死信主题推导器，nil 被忽略。
func WithTopicNameExtractor(e TopicNameExtractor) CollectorOption {
	return func(c *CollectorConfig) {
		if e != nil {
			c.TopicNameExtractor = e
		}
	}
}

// WithTopicSuffix 使用后缀推导死信主题。
func WithTopicSuffix(suffix string) CollectorOption {
	return func(c *CollectorConfig) {
		c.TopicNameExtractor = NewSuffixTopicNameExtractor(suffix)
	}
}

// WithTopicCache 设置已确认主题缓存的容量和过期时间。
func WithTopicCache(size int, ttl time.Duration) CollectorOption {
	return func(c *CollectorConfig) {
		c.TopicCacheSize = size
		c.TopicCacheTTL = ttl
	}
}

// WithFlushTimeout 设置释放时的 Flush 超时。
func WithFlushTimeout(d time.Duration) CollectorOption {
	return func(c *CollectorConfig) {
		if d > 0 {
			c.FlushTimeout = d
		}
	}
}

// WithTopicRetryer 设置创建主题的重试执行器。
func WithTopicRetryer(r *xretry.Retryer) CollectorOption {
	return func(c *CollectorConfig) {
		c.TopicRetryer = r
	}
}

// WithBreaker 为发送加上熔断保护。
func WithBreaker(b *xbreaker.Breaker) CollectorOption {
	return func(c *CollectorConfig) {
		c.Breaker = b
	}
}

// WithTracer 设置追踪注入器，nil 被忽略。
func WithTracer(t Tracer) CollectorOption {
	return func(c *CollectorConfig) {
		if t != nil {
			c.Tracer = t
		}
	}
}

// WithObserver 设置观测器，nil 被忽略。
func WithObserver(o xmetrics.Observer) CollectorOption {
	return func(c *CollectorConfig) {
		if o != nil {
			c.Observer = o
		}
	}
}

// Validate 检查配置。
func (c CollectorConfig) Validate() error {
	switch {
	case c.Client == nil && len(c.ProducerConfig) == 0:
		return fmt.Errorf("%w: producer config or client is required", ErrConfiguration)
	case c.TopicPartitions == 0 || c.TopicPartitions < -1:
		return fmt.Errorf("%w: topic partitions %d", ErrConfiguration, c.TopicPartitions)
	case c.ReplicationFactor == 0 || c.ReplicationFactor < -1:
		return fmt.Errorf("%w: replication factor %d", ErrConfiguration, c.ReplicationFactor)
	case c.TopicCacheSize <= 0:
		return fmt.Errorf("%w: topic cache size %d", ErrConfiguration, c.TopicCacheSize)
	case c.TopicCacheTTL < 0:
		return fmt.Errorf("%w: topic cache ttl %s", ErrConfiguration, c.TopicCacheTTL)
	}
	return nil
}

// Identity 返回注册表使用的身份键。
// 调用方托管的 Client 按指针区分；否则按排序后的属性计算 xxhash。
func (c CollectorConfig) Identity() string {
	if c.Client != nil {
		return fmt.Sprintf("client-%p", c.Client)
	}
	keys := make([]string, 0, len(c.ProducerConfig))
	for k := range c.ProducerConfig {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, c.ProducerConfig[k])
	}
	return fmt.Sprintf("props-%016x", xxhash.Sum64String(b.String()))
}

// fileConfig 配置文件结构：
//
//	dlq:
//	  producer:
//	    bootstrap.servers: localhost:9092
//	  topic:
//	    suffix: -rejected
//	    auto_create: true
//	    partitions: 3
//	    replication_factor: 1
//	    cache_size: 1024
//	    cache_ttl: 10m
//	  flush_timeout: 10s
type fileConfig struct {
	Producer map[string]any `koanf:"producer"`
	Topic    struct {
		Suffix            string        `koanf:"suffix"`
		AutoCreate        *bool         `koanf:"auto_create"`
		Partitions        int           `koanf:"partitions"`
		ReplicationFactor int           `koanf:"replication_factor"`
		CacheSize         int           `koanf:"cache_size"`
		CacheTTL          time.Duration `koanf:"cache_ttl"`
	} `koanf:"topic"`
	FlushTimeout time.Duration `koanf:"flush_timeout"`
}

// configRoot 配置文件中的根路径。
const configRoot = "dlq"

// LoadCollectorConfig 从 YAML/JSON 文件加载配置，opts 在文件配置之后应用。
func LoadCollectorConfig(path string, opts ...CollectorOption) (CollectorConfig, error) {
	cfg, err := xconf.New(path, xconf.WithDelim("/"))
	if err != nil {
		return CollectorConfig{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return collectorConfigFrom(cfg, opts)
}

// CollectorConfigFromBytes 从字节数据加载配置。
func CollectorConfigFromBytes(data []byte, format xconf.Format, opts ...CollectorOption) (CollectorConfig, error) {
	cfg, err := xconf.NewFromBytes(data, format, xconf.WithDelim("/"))
	if err != nil {
		return CollectorConfig{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return collectorConfigFrom(cfg, opts)
}

func collectorConfigFrom(cfg *xconf.Config, opts []CollectorOption) (CollectorConfig, error) {
	var fc fileConfig
	if err := cfg.Unmarshal(configRoot, &fc); err != nil {
		return CollectorConfig{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	base := []CollectorOption{WithProducerConfig(toConfigMap(fc.Producer))}
	if fc.Topic.Suffix != "" {
		base = append(base, WithTopicSuffix(fc.Topic.Suffix))
	}
	if fc.Topic.AutoCreate != nil {
		base = append(base, WithAutoCreateTopic(*fc.Topic.AutoCreate))
	}
	if fc.Topic.Partitions != 0 {
		base = append(base, WithTopicPartitions(fc.Topic.Partitions))
	}
	if fc.Topic.ReplicationFactor != 0 {
		base = append(base, WithReplicationFactor(fc.Topic.ReplicationFactor))
	}
	if fc.Topic.CacheSize != 0 || fc.Topic.CacheTTL != 0 {
		size, ttl := fc.Topic.CacheSize, fc.Topic.CacheTTL
		if size == 0 {
			size = DefaultTopicCacheSize
		}
		if ttl == 0 {
			ttl = DefaultTopicCacheTTL
		}
		base = append(base, WithTopicCache(size, ttl))
	}
	base = append(base, WithFlushTimeout(fc.FlushTimeout))

	out := NewCollectorConfig(append(base, opts...)...)
	if err := out.Validate(); err != nil {
		return CollectorConfig{}, err
	}
	return out, nil
}

func toConfigMap[V any](m map[string]V) kafka.ConfigMap {
	out := make(kafka.ConfigMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
