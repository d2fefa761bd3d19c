package xdlq

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// DeserializationResponse 反序列化失败处理结果。
type DeserializationResponse int

const (
	// DeserializationContinue 跳过该记录继续处理。
	DeserializationContinue DeserializationResponse = iota
	// DeserializationFail 停止处理。
	DeserializationFail
)

func (r DeserializationResponse) String() string {
	if r == DeserializationContinue {
		return "CONTINUE"
	}
	return "FAIL"
}

// DeserializationHandler 把反序列化失败的记录转发到死信主题。
// 死信发送失败时返回 Fail，该路径不接受数据丢失。
type DeserializationHandler struct {
	core *handlerCore
}

// NewDeserializationHandler 创建处理器，使用前必须调用 Configure。
func NewDeserializationHandler(opts ...HandlerOption) *DeserializationHandler {
	return &DeserializationHandler{core: newHandlerCore(KindDeserialization, opts)}
}

// Configure 读取处理器配置，application.id 必填。
func (d *DeserializationHandler) Configure(values map[string]any) error {
	return d.core.configure(values)
}

// Handle 处理一条反序列化失败的记录。未 Configure 时 panic。
func (d *DeserializationHandler) Handle(ctx context.Context, pc ProcessorContext, record *kafka.Message, cause error) DeserializationResponse {
	if ctx == nil {
		ctx = context.Background()
	}
	d.core.mustBeConfigured()
	if record == nil {
		d.core.outcome(ctx, pc, nil, "", ErrNilRecord)
		return DeserializationFail
	}
	topic, err := d.core.process(ctx, record, cause)
	if d.core.outcome(ctx, pc, record, topic, err) {
		return DeserializationFail
	}
	return DeserializationContinue
}

// State 返回生命周期状态。
func (d *DeserializationHandler) State() State { return d.core.currentState() }

// Close 释放 Collector 引用，幂等。
func (d *DeserializationHandler) Close() error { return d.core.close() }
