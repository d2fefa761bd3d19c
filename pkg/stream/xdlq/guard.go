package xdlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xstream/pkg/observability/xlog"
	"github.com/omeyang/xstream/pkg/observability/xmetrics"
	"github.com/omeyang/xstream/pkg/resilience/xretry"
)

// 主题创建的默认重试参数。
const (
	topicCreateAttempts     = 3
	topicCreateInitialDelay = 100 * time.Millisecond
	topicCreateMaxDelay     = 2 * time.Second

	// topicCreateTimeout 限制一次合并创建的总耗时，与任何调用者的 ctx 无关。
	topicCreateTimeout = 30 * time.Second
)

// defaultTopicRetryer 只重试 Broker 标记为可重试的错误和超时。
func defaultTopicRetryer(logger xlog.Logger) *xretry.Retryer {
	return xretry.New(
		xretry.WithAttempts(topicCreateAttempts),
		xretry.WithClassifier(isRetriableAdminError),
		xretry.WithBackoff(xretry.Exponential(topicCreateInitialDelay, topicCreateMaxDelay, 0.1)),
		xretry.WithOnRetry(func(attempt int, err error) {
			logger.Warn(context.Background(), "retrying dlq topic creation",
				slog.Int("attempt", attempt), xlog.Err(err))
		}),
	)
}

func isRetriableAdminError(err error) bool {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return false
	}
	switch kerr.Code() {
	case kafka.ErrTimedOut, kafka.ErrRequestTimedOut, kafka.ErrTransport:
		return true
	default:
		return kerr.IsRetriable()
	}
}

// EnsureTopic 保证死信主题存在。
//
// 自动创建关闭时直接返回 nil，主题缺失会在发送时暴露。已确认的主题命中缓存，
// 不产生网络调用。并发的首次调用按主题合并为一次请求；Broker 返回
// "主题已存在" 视为成功，这是跨进程去重的唯一依据。
//
// 合并请求脱离发起者的 ctx 运行，只受 topicCreateTimeout 约束。每个调用者
// 只在自己的 ctx 结束时提前返回 ctx 错误，不影响同组的其它等待者。
func (c *Collector) EnsureTopic(ctx context.Context, topic string) (err error) {
	if topic == "" {
		return fmt.Errorf("%w: %w", ErrTopicCreation, ErrEmptyTopic)
	}
	if !c.cfg.AutoCreateTopic {
		return nil
	}
	if c.closed.Load() {
		return ErrCollectorClosed
	}
	if c.topics.Contains(topic) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := xmetrics.Start(ctx, c.cfg.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "ensure_topic",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("messaging.destination", topic)},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	ch := c.group.DoChan(topic, func() (any, error) {
		// 等待期间其它调用者可能已确认该主题。
		if c.topics.Has(topic) {
			return nil, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), topicCreateTimeout)
		defer cancel()
		return nil, c.createTopic(cctx, topic)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrTopicCreation, topic, ctx.Err())
	}
}

func (c *Collector) createTopic(ctx context.Context, topic string) error {
	if c.admin == nil {
		c.stats.incTopicFailure()
		return fmt.Errorf("%w: %s: %w", ErrTopicCreation, topic, ErrNoAdmin)
	}

	spec := kafka.TopicSpecification{
		Topic:             topic,
		NumPartitions:     c.cfg.TopicPartitions,
		ReplicationFactor: c.cfg.ReplicationFactor,
	}
	var existed bool
	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		results, err := c.admin.CreateTopics(ctx, []kafka.TopicSpecification{spec})
		if err != nil {
			return err
		}
		for _, r := range results {
			switch r.Error.Code() {
			case kafka.ErrNoError:
			case kafka.ErrTopicAlreadyExists:
				existed = true
			default:
				return r.Error
			}
		}
		return nil
	})
	if err != nil {
		c.stats.incTopicFailure()
		return fmt.Errorf("%w: %s: %w", ErrTopicCreation, topic, err)
	}

	c.topics.Add(topic)
	c.stats.incTopicCreated()
	c.logger.Info(ctx, "dlq topic ensured", attrDLQTopic(topic), slog.Bool("existed", existed))
	return nil
}
