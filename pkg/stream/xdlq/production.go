package xdlq

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ProductionResponse 生产失败处理结果。
type ProductionResponse int

const (
	// ProductionContinue 忽略该失败继续处理。
	ProductionContinue ProductionResponse = iota
	// ProductionFail 停止处理。
	ProductionFail
)

func (r ProductionResponse) String() string {
	if r == ProductionContinue {
		return "CONTINUE"
	}
	return "FAIL"
}

// ProductionHandler 把生产失败的记录转发到死信主题。
//
// 与 DeserializationHandler 不同，发送失败时除了返回 Fail 还把错误交给调用方，
// 由上游决定恢复策略。生产失败没有偏移量，不写 error.record.offset。
type ProductionHandler struct {
	core *handlerCore
}

// NewProductionHandler 创建处理器，使用前必须调用 Configure。
func NewProductionHandler(opts ...HandlerOption) *ProductionHandler {
	return &ProductionHandler{core: newHandlerCore(KindProduction, opts)}
}

// Configure 读取处理器配置，application.id 必填。
func (p *ProductionHandler) Configure(values map[string]any) error {
	return p.core.configure(values)
}

// Handle 处理一条生产失败的记录。未 Configure 时 panic。
func (p *ProductionHandler) Handle(ctx context.Context, record *kafka.Message, cause error) (ProductionResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.core.mustBeConfigured()
	if record == nil {
		p.core.outcome(ctx, nil, nil, "", ErrNilRecord)
		return ProductionFail, ErrNilRecord
	}
	topic, err := p.core.process(ctx, record, cause)
	if p.core.outcome(ctx, nil, record, topic, err) {
		return ProductionFail, err
	}
	return ProductionContinue, nil
}

// State 返回生命周期状态。
func (p *ProductionHandler) State() State { return p.core.currentState() }

// Close 释放 Collector 引用，幂等。
func (p *ProductionHandler) Close() error { return p.core.close() }
