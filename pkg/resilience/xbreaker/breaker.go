package xbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

type (
	State  = gobreaker.State
	Counts = gobreaker.Counts
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Config 熔断参数，零值字段使用默认值。
type Config struct {
	Name string

	// Failures 连续失败多少次熔断，默认 5。
	Failures uint32

	// FailureRatio 大于 0 时改用失败率判定：窗口内请求数达到 MinRequests
	// 且失败率不低于 FailureRatio 时熔断。
	FailureRatio float64
	MinRequests  uint32

	// OpenTimeout Open 到 HalfOpen 的等待，默认 60s。
	OpenTimeout time.Duration

	// HalfOpenProbes HalfOpen 状态放行的请求数，默认 1。
	HalfOpenProbes uint32

	// Window Closed 状态下清零计数的周期，0 表示不清零。
	Window time.Duration

	// Ignore 返回 true 的错误不计为失败，例如调用方参数错误。
	Ignore func(error) bool

	// OnStateChange 在 gobreaker 内部锁中同步调用。
	OnStateChange func(name string, from, to State)
}

func (c Config) tripper() func(Counts) bool {
	if c.FailureRatio > 0 {
		ratio := min(c.FailureRatio, 1)
		return func(n Counts) bool {
			return n.Requests > 0 && n.Requests >= c.MinRequests &&
				float64(n.TotalFailures)/float64(n.Requests) >= ratio
		}
	}
	threshold := c.Failures
	if threshold == 0 {
		threshold = 5
	}
	return func(n Counts) bool { return n.ConsecutiveFailures >= threshold }
}

// Breaker 并发安全。
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// New 创建熔断器。
func New(cfg Config) *Breaker {
	st := gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   max(cfg.HalfOpenProbes, 1),
		Interval:      max(cfg.Window, 0),
		Timeout:       cfg.OpenTimeout,
		ReadyToTrip:   cfg.tripper(),
		OnStateChange: cfg.OnStateChange,
	}
	if st.Timeout <= 0 {
		st.Timeout = 60 * time.Second
	}
	if ignore := cfg.Ignore; ignore != nil {
		st.IsSuccessful = func(err error) bool { return err == nil || ignore(err) }
	}
	return &Breaker{name: cfg.Name, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

// Do 在熔断保护下执行 fn。拒绝执行时 fn 不会被调用，返回 *OpenError。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (struct{}, error) { return struct{}{}, fn() })
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return &OpenError{Name: b.name, State: StateOpen, Err: err}
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return &OpenError{Name: b.name, State: StateHalfOpen, Err: err}
	}
	return err
}

// Allow 不执行任何操作，只报告当前是否会拒绝请求。
func (b *Breaker) Allow() error {
	if b.cb.State() == StateOpen {
		return &OpenError{Name: b.name, State: StateOpen, Err: gobreaker.ErrOpenState}
	}
	return nil
}

func (b *Breaker) Name() string { return b.name }
func (b *Breaker) State() State { return b.cb.State() }
func (b *Breaker) Counts() Counts { return b.cb.Counts() }

// OpenError 熔断器拒绝执行。
type OpenError struct {
	Name  string
	State State
	Err   error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("xbreaker: %s %s: %v", e.Name, e.State, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Retryable() bool { return false }

// IsOpen 报告错误链中是否有熔断拒绝。
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
