package xconf

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	ErrEmptyPath         = errors.New("xconf: empty path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported format")
	ErrLoad              = errors.New("xconf: load")
	ErrParse             = errors.New("xconf: parse")
	ErrUnmarshal         = errors.New("xconf: unmarshal")

	// ErrNotReloadable 配置不是从文件加载的。
	ErrNotReloadable = errors.New("xconf: not file backed")
)

// Format 配置来源格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatMap  Format = "map"
)

func (f Format) parser() (koanf.Parser, error) {
	switch f {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// FormatOf 按扩展名识别格式。
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
}

// Option 配置加载选项。
type Option func(*Config)

// WithDelim key 分隔符，默认 "."，空串忽略。
func WithDelim(delim string) Option {
	return func(c *Config) {
		if delim != "" {
			c.delim = delim
		}
	}
}

// WithTag 结构体标签，默认 "koanf"，空串忽略。
func WithTag(tag string) Option {
	return func(c *Config) {
		if tag != "" {
			c.tag = tag
		}
	}
}

// Config 并发安全的配置快照。Reload 原子替换快照，之前取得的 Koanf 仍可读但不再更新。
type Config struct {
	delim  string
	tag    string
	path   string
	format Format

	k      atomic.Pointer[koanf.Koanf]
	reload sync.Mutex
}

func newConfig(format Format, opts []Option) *Config {
	c := &Config{delim: ".", tag: "koanf", format: format}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// New 从文件加载，格式按扩展名识别，支持 Reload。
func New(path string, opts ...Option) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	c := newConfig(format, opts)
	c.path = path
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromBytes 解析字节数据，空数据得到空配置。
func NewFromBytes(data []byte, format Format, opts ...Option) (*Config, error) {
	c := newConfig(format, opts)
	k, err := c.parse(data)
	if err != nil {
		return nil, err
	}
	c.k.Store(k)
	return c, nil
}

// NewFromMap 复制 values 作为配置，key 原样保留。
func NewFromMap(values map[string]any, opts ...Option) (*Config, error) {
	c := newConfig(FormatMap, opts)
	k := koanf.New(c.delim)
	if len(values) > 0 {
		if err := k.Load(flatMap(maps.Clone(values)), nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
	}
	c.k.Store(k)
	return c, nil
}

func (c *Config) parse(data []byte) (*koanf.Koanf, error) {
	p, err := c.format.parser()
	if err != nil {
		return nil, err
	}
	k := koanf.New(c.delim)
	if len(data) == 0 {
		return k, nil
	}
	if err := k.Load(rawbytes.Provider(data), p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return k, nil
}

// Reload 重新读取文件。失败时保留旧快照。
func (c *Config) Reload() error {
	if c.path == "" {
		return ErrNotReloadable
	}
	c.reload.Lock()
	defer c.reload.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	k, err := c.parse(data)
	if err != nil {
		return err
	}
	c.k.Store(k)
	return nil
}

// Koanf 返回当前快照。
func (c *Config) Koanf() *koanf.Koanf { return c.k.Load() }

// Unmarshal 把 path 下的配置解码到 target，path 为空解码全部。
func (c *Config) Unmarshal(path string, target any) error {
	if err := c.k.Load().UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshal, err)
	}
	return nil
}

// Prefixed 返回以 prefix 开头的 key（去掉前缀）及其 fmt.Sprint 形式的值。
// 去掉前缀后为空的 key 被忽略。
func (c *Config) Prefixed(prefix string) map[string]string {
	out := make(map[string]string)
	for key, v := range c.k.Load().All() {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			out[rest] = fmt.Sprint(v)
		}
	}
	return out
}

// Path 返回配置文件路径，内存来源为空。
func (c *Config) Path() string { return c.path }

// Format 返回配置格式。
func (c *Config) Format() Format { return c.format }

// flatMap 实现 koanf.Provider，不展开 key，区别于 confmap。
type flatMap map[string]any

func (m flatMap) Read() (map[string]any, error) { return m, nil }

func (flatMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("xconf: flat map has no byte form")
}
