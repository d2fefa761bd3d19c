package xretry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff 返回第 attempt 次失败后的等待时间，attempt 从 1 开始。
type Backoff func(attempt int) time.Duration

// Constant 固定等待，负值按 0。
func Constant(d time.Duration) Backoff {
	d = max(d, 0)
	return func(int) time.Duration { return d }
}

// Exponential 等待 initial*2^(attempt-1)，再乘以 [1-jitter, 1+jitter] 的随机系数，
// 上限 maxDelay。jitter 截断到 [0, 1]，maxDelay 小于 initial 时取 initial。
func Exponential(initial, maxDelay time.Duration, jitter float64) Backoff {
	initial = max(initial, 0)
	maxDelay = max(maxDelay, initial)
	jitter = min(max(jitter, 0), 1)
	return func(attempt int) time.Duration {
		d := float64(initial) * math.Exp2(float64(max(attempt, 1)-1))
		if jitter > 0 {
			d *= 1 + jitter*(2*rand.Float64()-1) //nolint:gosec // 抖动不需要密码学随机数
		}
		if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(maxDelay) {
			return maxDelay
		}
		return time.Duration(d)
	}
}
