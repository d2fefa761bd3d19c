package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type topicFile struct {
	Suffix     string        `koanf:"suffix"`
	Partitions int           `koanf:"partitions"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	AutoCreate bool          `koanf:"auto_create"`
}

type dlqFile struct {
	Producer map[string]string `koanf:"producer"`
	Topic    topicFile         `koanf:"topic"`
}

const dlqYAML = `
dlq:
  producer:
    bootstrap.servers: localhost:9092
  topic:
    suffix: -dead
    partitions: 3
    cache_ttl: 30s
    auto_create: true
`

const dlqJSON = `{"dlq": {"producer": {"bootstrap.servers": "localhost:9092"},
  "topic": {"suffix": "-dead", "partitions": "3", "cache_ttl": "30s", "auto_create": "true"}}}`

var wantDLQ = dlqFile{
	Producer: map[string]string{"bootstrap.servers": "localhost:9092"},
	Topic:    topicFile{Suffix: "-dead", Partitions: 3, CacheTTL: 30 * time.Second, AutoCreate: true},
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func decodeDLQ(t *testing.T, c *Config) dlqFile {
	t.Helper()
	var got dlqFile
	require.NoError(t, c.Unmarshal("dlq", &got))
	return got
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{"a.yaml": FormatYAML, "b.YML": FormatYAML, "c.json": FormatJSON} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("d.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNew_File(t *testing.T) {
	// "/" 分隔时 bootstrap.servers 不会被拆成嵌套 key。
	c, err := New(writeFile(t, "dlq.yaml", dlqYAML), WithDelim("/"))
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, c.Format())
	assert.NotEmpty(t, c.Path())
	assert.Equal(t, wantDLQ, decodeDLQ(t, c))

	c, err = New(writeFile(t, "dlq.json", dlqJSON), WithDelim("/"))
	require.NoError(t, err)
	assert.Equal(t, wantDLQ, decodeDLQ(t, c))
}

func TestNew_Errors(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = New("dlq.ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoad)

	_, err = New(writeFile(t, "bad.json", "{"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestNewFromBytes(t *testing.T) {
	c, err := NewFromBytes([]byte(dlqYAML), FormatYAML, WithDelim("/"))
	require.NoError(t, err)
	assert.Equal(t, wantDLQ, decodeDLQ(t, c))
	assert.ErrorIs(t, c.Reload(), ErrNotReloadable)

	empty, err := NewFromBytes(nil, FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, empty.Koanf().Keys())

	_, err = NewFromBytes([]byte("x"), FormatMap)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewFromMap_KeepsDottedKeys(t *testing.T) {
	values := map[string]any{
		"application.id":         "orders",
		"dlq.topic.suffix":       "-dead",
		"dlq.producer.acks":      "all",
		"dlq.producer.linger.ms": 5,
		"dlq.producer.":          "ignored",
	}
	c, err := NewFromMap(values, WithDelim("/"))
	require.NoError(t, err)
	assert.Equal(t, FormatMap, c.Format())

	var s struct {
		AppID  string `koanf:"application.id"`
		Suffix string `koanf:"dlq.topic.suffix"`
	}
	require.NoError(t, c.Unmarshal("", &s))
	assert.Equal(t, "orders", s.AppID)
	assert.Equal(t, "-dead", s.Suffix)

	assert.Equal(t, map[string]string{"acks": "all", "linger.ms": "5"}, c.Prefixed("dlq.producer."))

	values["application.id"] = "changed"
	assert.Equal(t, "orders", c.Koanf().String("application.id"))
}

func TestNewFromMap_Empty(t *testing.T) {
	c, err := NewFromMap(nil)
	require.NoError(t, err)
	assert.Empty(t, c.Prefixed(""))
	assert.ErrorIs(t, c.Reload(), ErrNotReloadable)
}

func TestUnmarshal_Error(t *testing.T) {
	c, err := NewFromMap(map[string]any{"partitions": "many"}, WithDelim("/"))
	require.NoError(t, err)

	var s struct {
		Partitions int `koanf:"partitions"`
	}
	assert.ErrorIs(t, c.Unmarshal("", &s), ErrUnmarshal)
}

func TestWithTag(t *testing.T) {
	c, err := NewFromMap(map[string]any{"suffix": "-x"}, WithTag("json"), WithTag(""), WithDelim(""), nil)
	require.NoError(t, err)

	var s struct {
		Suffix string `json:"suffix"`
	}
	require.NoError(t, c.Unmarshal("", &s))
	assert.Equal(t, "-x", s.Suffix)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "dlq.yaml", "dlq:\n  topic:\n    suffix: -a\n")
	c, err := New(path)
	require.NoError(t, err)
	before := c.Koanf()

	require.NoError(t, os.WriteFile(path, []byte("dlq:\n  topic:\n    suffix: -b\n"), 0o600))
	require.NoError(t, c.Reload())
	assert.Equal(t, "-b", c.Koanf().String("dlq.topic.suffix"))
	assert.Equal(t, "-a", before.String("dlq.topic.suffix"))

	require.NoError(t, os.WriteFile(path, []byte("dlq: ["), 0o600))
	assert.ErrorIs(t, c.Reload(), ErrParse)
	assert.Equal(t, "-b", c.Koanf().String("dlq.topic.suffix"))
}

func TestReload_Concurrent(t *testing.T) {
	c, err := New(writeFile(t, "dlq.json", dlqJSON), WithDelim("/"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Reload())
		}()
		go func() {
			defer wg.Done()
			var got dlqFile
			assert.NoError(t, c.Unmarshal("dlq", &got))
		}()
	}
	wg.Wait()
	assert.Equal(t, wantDLQ, decodeDLQ(t, c))
}
