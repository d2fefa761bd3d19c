package mqcore

import "errors"

// ErrNilClient 客户端为空。由上层包重导出，前缀不暴露 internal 包名。
var ErrNilClient = errors.New("mq: nil client")
