package xjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const indent = "  "

// PrettyE 将 v 序列化为两空格缩进的 JSON，不转义 HTML 字符，不带结尾换行。
func PrettyE(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMarshal, err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Pretty 与 PrettyE 相同，失败时返回标记串。
func Pretty(v any) string {
	s, err := PrettyE(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return s
}
