package xretry

import (
	"context"
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

var (
	ErrNilContext = errors.New("xretry: nil context")
	ErrNilFunc    = errors.New("xretry: nil function")
)

// Retryable 判断错误是否值得重试。nil 不重试；错误链中实现了
// Retryable() bool 的错误按其声明；其余重试。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Unrecoverable 标记错误不再重试。
func Unrecoverable(err error) error { return retry.Unrecoverable(err) }

// IsRecoverable 报告错误是否未被 Unrecoverable 标记。
func IsRecoverable(err error) bool { return retry.IsRecoverable(err) }

// Retryer 零值可用：3 次尝试，默认分类，指数退避。
type Retryer struct {
	attempts int
	classify func(error) bool
	backoff  Backoff
	onRetry  func(attempt int, err error)
}

// Option 配置 Retryer。
type Option func(*Retryer)

// WithAttempts 总尝试次数，包含首次；n <= 0 表示直到成功或 ctx 结束。
func WithAttempts(n int) Option {
	return func(r *Retryer) { r.attempts = n }
}

// WithClassifier 设置可重试判定，nil 使用 Retryable。
func WithClassifier(f func(error) bool) Option {
	return func(r *Retryer) { r.classify = f }
}

// WithBackoff nil 被忽略。
func WithBackoff(b Backoff) Option {
	return func(r *Retryer) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithOnRetry 每次决定重试后、等待前调用，attempt 为已失败次数。
func WithOnRetry(f func(attempt int, err error)) Option {
	return func(r *Retryer) { r.onRetry = f }
}

// New 创建 Retryer。
func New(opts ...Option) *Retryer {
	r := &Retryer{attempts: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do 执行 fn 直到成功、错误不可重试、次数用尽或 ctx 结束，返回最后一次错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	switch {
	case ctx == nil:
		return ErrNilContext
	case fn == nil:
		return ErrNilFunc
	}
	if r == nil {
		r = &Retryer{attempts: 3}
	}
	return retry.New(r.options(ctx)...).Do(func() error { return fn(ctx) })
}

func (r *Retryer) options(ctx context.Context) []retry.Option {
	classify := r.classify
	if classify == nil {
		classify = Retryable
	}
	backoff := r.backoff
	if backoff == nil {
		backoff = Exponential(100*time.Millisecond, 30*time.Second, 0.1)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retry.IsRecoverable(err) && classify(err)
		}),
		// retry-go v5 的 n 从 1 开始。
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff(toInt(n))
		}),
	}
	if r.attempts > 0 {
		opts = append(opts, retry.Attempts(uint(r.attempts)))
	} else {
		opts = append(opts, retry.UntilSucceeded())
	}
	if f := r.onRetry; f != nil {
		// OnRetry 的 n 从 0 开始。
		opts = append(opts, retry.OnRetry(func(n uint, err error) { f(toInt(n)+1, err) }))
	}
	return opts
}

func toInt(n uint) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
