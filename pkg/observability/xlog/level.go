package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，数值与 slog.Level 相同。
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel 解析级别名，大小写不敏感，额外接受 "warning"。
// 也接受 slog 的偏移写法，例如 "INFO+2"。
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
	}
	return l, nil
}
