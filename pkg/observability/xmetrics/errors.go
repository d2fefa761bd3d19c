package xmetrics

import "errors"

// ErrInstrument OTel 指标仪表创建失败，错误信息带有指标名。
var ErrInstrument = errors.New("xmetrics: create instrument failed")
