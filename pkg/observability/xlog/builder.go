package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format 输出格式。
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Builder 日志构建器，默认 stderr、Info、text，写入追踪字段。
type Builder struct {
	out    io.Writer
	file   *lumberjack.Logger
	level  Level
	format Format
	source bool
	traced bool
	attrs  []slog.Attr
	errs   []error
}

// New 创建 Builder。
func New() *Builder {
	return &Builder{out: os.Stderr, level: LevelInfo, format: FormatText, traced: true}
}

// SetOutput nil 被忽略。与 SetRotation 同时使用时以后调用者为准。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.out, b.file = w, nil
	}
	return b
}

func (b *Builder) SetLevel(level Level) *Builder {
	b.level = level
	return b
}

func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 接受 text 或 json，大小写不敏感，空串视为 text。
func (b *Builder) SetFormat(format Format) *Builder {
	switch Format(strings.ToLower(strings.TrimSpace(string(format)))) {
	case "", FormatText:
		b.format = FormatText
	case FormatJSON:
		b.format = FormatJSON
	default:
		b.errs = append(b.errs, fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 输出调用位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.source = enable
	return b
}

// SetTraceFields 是否写入 trace_id、span_id。
func (b *Builder) SetTraceFields(enable bool) *Builder {
	b.traced = enable
	return b
}

// SetRotation 写入按大小轮转的文件。
func (b *Builder) SetRotation(filename string, cfg RotationConfig) *Builder {
	file, err := cfg.open(filename)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.out, b.file = file, file
	return b
}

// SetAttrs 追加每条日志都带的属性。
func (b *Builder) SetAttrs(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// Build 返回 Logger 与关闭轮转文件的 cleanup，cleanup 可重复调用。
func (b *Builder) Build() (LevelLogger, func() error, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(b.level)
	opts := &slog.HandlerOptions{Level: lv, AddSource: b.source}

	var h slog.Handler
	if b.format == FormatJSON {
		h = slog.NewJSONHandler(b.out, opts)
	} else {
		h = slog.NewTextHandler(b.out, opts)
	}
	if len(b.attrs) > 0 {
		h = h.WithAttrs(b.attrs)
	}

	cleanup := func() error { return nil }
	if b.file != nil {
		cleanup = sync.OnceValue(b.file.Close)
	}
	return &logger{handler: h, level: lv, source: b.source, traced: b.traced}, cleanup, nil
}
