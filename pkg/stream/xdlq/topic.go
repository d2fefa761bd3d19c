package xdlq

// DefaultSuffix 默认死信主题后缀。
const DefaultSuffix = "-rejected"

// TopicNameExtractor 由失败上下文推导死信主题名。
type TopicNameExtractor interface {
	Extract(fc FailureContext) string
}

// TopicNameExtractorFunc 函数形式的 TopicNameExtractor。
type TopicNameExtractorFunc func(fc FailureContext) string

// Extract 调用 f。
func (f TopicNameExtractorFunc) Extract(fc FailureContext) string { return f(fc) }

// SuffixTopicNameExtractor 在源主题后追加固定后缀。
type SuffixTopicNameExtractor struct {
	suffix string
}

// NewSuffixTopicNameExtractor 创建后缀推导器，suffix 为空时使用 DefaultSuffix。
func NewSuffixTopicNameExtractor(suffix string) SuffixTopicNameExtractor {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return SuffixTopicNameExtractor{suffix: suffix}
}

// Suffix 返回后缀。
func (e SuffixTopicNameExtractor) Suffix() string {
	if e.suffix == "" {
		return DefaultSuffix
	}
	return e.suffix
}

// Extract 返回 源主题+后缀；源主题为空时返回空字符串。
func (e SuffixTopicNameExtractor) Extract(fc FailureContext) string {
	return ResolveTopic(fc.Topic, e.Suffix())
}

// ResolveTopic 返回 source+suffix，source 为空时返回空字符串。
func ResolveTopic(source, suffix string) string {
	if source == "" {
		return ""
	}
	return source + suffix
}

var (
	_ TopicNameExtractor = SuffixTopicNameExtractor{}
	_ TopicNameExtractor = TopicNameExtractorFunc(nil)
)
