package xlog

import (
	"errors"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrEmptyFilename 轮转文件名为空。
var ErrEmptyFilename = errors.New("xlog: rotation filename is empty")

// RotationConfig 文件轮转参数，非正数使用默认值：100MB、保留 5 个、14 天。
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (c RotationConfig) open(filename string) (*lumberjack.Logger, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}
	return &lumberjack.Logger{
		Filename:   filepath.Clean(filename),
		MaxSize:    orDefault(c.MaxSizeMB, 100),
		MaxBackups: orDefault(c.MaxBackups, 5),
		MaxAge:     orDefault(c.MaxAgeDays, 14),
		Compress:   c.Compress,
	}, nil
}
