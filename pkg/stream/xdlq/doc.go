// Package xdlq 为 Kafka 流处理管道提供死信队列（DLQ）记录收集。
//
// 流处理运行时在反序列化或生产失败时调用处理器，处理器把失败记录连同
// 结构化的失败元数据一起转发到派生的错误主题，必要时自动创建该主题。
//
// # 组成
//
//   - Registry：按配置身份共享 Collector，引用计数归零时释放生产者
//   - Collector：持有生产者和主题管理端，负责主题保障与发送
//   - EncodeHeaders / DecodeHeaders：失败元数据与消息头之间的编解码
//   - TopicNameExtractor：由源主题推导死信主题，默认追加 "-rejected"
//   - DeserializationHandler / ProductionHandler：运行时回调入口
//
// # 生命周期
//
// 处理器状态依次为 Unconfigured、Configured、Active、Closed。
// 未调用 Configure 就调用 Handle 属于编程错误，会 panic。
//
//	reg := xdlq.DefaultRegistry()
//	h, err := reg.GetOrCreate(ctx, xdlq.NewCollectorConfig(
//	    xdlq.WithProducerConfig(kafka.ConfigMap{"bootstrap.servers": "localhost:9092"}),
//	))
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	handler := xdlq.NewDeserializationHandler()
//	if err := handler.Configure(map[string]any{"application.id": "orders-app"}); err != nil {
//	    return err
//	}
//	defer handler.Close()
//
// # 消息头
//
// 源记录的消息头在前，失败元数据在后。同名消息头以最后一次出现为准。
// error.timestamp 使用十进制毫秒时间戳；error.record.offset 只出现在反序列化失败中。
//
// # 宽松与严格模式
//
// 处理器首次失败时若没有可用的 Collector，默认记录警告并返回 Continue，
// 不阻塞主流程。设置 dlq.strict.enabled=true 后改为返回 Fail。
package xdlq
