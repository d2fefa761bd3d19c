package xdlq

import (
	"errors"

	"github.com/omeyang/xstream/internal/mqcore"
)

// ErrNilClient 表示传入的客户端为空。
var ErrNilClient = mqcore.ErrNilClient

var (
	// ErrConfiguration 表示处理器或收集器配置缺失或无效。
	ErrConfiguration = errors.New("xdlq: invalid configuration")

	// ErrProducerConstruction 表示生产者构建失败，注册表不会保留该条目。
	ErrProducerConstruction = errors.New("xdlq: producer construction failed")

	// ErrTopicCreation 表示死信主题创建失败（主题已存在不算失败）。
	ErrTopicCreation = errors.New("xdlq: topic creation failed")

	// ErrSend 表示死信记录发送失败。
	ErrSend = errors.New("xdlq: send failed")

	// ErrCollectorNotRegistered 表示注册表中没有默认 Collector。
	ErrCollectorNotRegistered = errors.New("xdlq: collector not registered")

	// ErrHandleReleased 表示句柄已释放。
	ErrHandleReleased = errors.New("xdlq: handle already released")

	// ErrCollectorClosed 表示 Collector 已释放。
	ErrCollectorClosed = errors.New("xdlq: collector closed")

	// ErrMalformedHeader 表示消息头无法解析为失败元数据。
	ErrMalformedHeader = errors.New("xdlq: malformed header")

	// ErrNilRecord 表示失败记录为空。
	ErrNilRecord = errors.New("xdlq: nil record")

	// ErrEmptyTopic 表示推导出的死信主题为空。
	ErrEmptyTopic = errors.New("xdlq: empty topic")

	// ErrNoAdmin 表示需要创建主题但没有主题管理端。
	ErrNoAdmin = errors.New("xdlq: no topic admin")

	// ErrFlushTimeout 表示释放时仍有记录未投递。
	ErrFlushTimeout = errors.New("xdlq: flush timeout")

	// ErrHandlerClosed 表示处理器已关闭。
	ErrHandlerClosed = errors.New("xdlq: handler closed")
)
