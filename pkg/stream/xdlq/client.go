package xdlq

import (
	"context"
	"fmt"
	"maps"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

//go:generate mockgen -destination=mock_admin_test.go -package=xdlq github.com/omeyang/xstream/pkg/stream/xdlq TopicAdmin

// Client 死信记录发送端，必须支持并发 Produce。*kafka.Producer 满足此接口。
type Client interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// TopicAdmin 主题管理端。*kafka.AdminClient 满足此接口。
type TopicAdmin interface {
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	Close()
}

// Disposer 可释放的资源，注册表保证每个实例只调用一次 Dispose。
//
// Collector 实现了 Disposer。调用方托管的 Client 若也实现了 Disposer，
// Collector 释放时改为调用它，而不是 Flush + Close。
type Disposer interface {
	Dispose(ctx context.Context) error
}

// ClientFactory 由生产者属性创建发送端和管理端。
// 返回的 TopicAdmin 可以为 nil，此时无法自动创建主题。
type ClientFactory func(props kafka.ConfigMap) (Client, TopicAdmin, error)

// DefaultClientFactory 创建 *kafka.Producer，并从同一连接派生 *kafka.AdminClient。
func DefaultClientFactory(props kafka.ConfigMap) (Client, TopicAdmin, error) {
	cfg := maps.Clone(props)
	if cfg == nil {
		cfg = kafka.ConfigMap{}
	}
	producer, err := kafka.NewProducer(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("new producer: %w", err)
	}
	admin, err := kafka.NewAdminClientFromProducer(producer)
	if err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("new admin client: %w", err)
	}
	return producer, admin, nil
}

// adminFor 为调用方托管的 *kafka.Producer 派生管理端，其它类型返回 nil。
func adminFor(client Client) (TopicAdmin, error) {
	producer, ok := client.(*kafka.Producer)
	if !ok || producer == nil {
		return nil, nil
	}
	admin, err := kafka.NewAdminClientFromProducer(producer)
	if err != nil {
		return nil, fmt.Errorf("new admin client: %w", err)
	}
	return admin, nil
}

var (
	_ Client     = (*kafka.Producer)(nil)
	_ TopicAdmin = (*kafka.AdminClient)(nil)
	_ Disposer   = (*Collector)(nil)
)
