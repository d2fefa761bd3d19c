// Package xretry 在 avast/retry-go/v5 之上提供按错误分类重试的执行器。
//
//	r := xretry.New(
//		xretry.WithAttempts(3),
//		xretry.WithClassifier(isTransient),
//		xretry.WithBackoff(xretry.Exponential(100*time.Millisecond, 2*time.Second, 0.1)),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error { ... })
//
// 分类函数为 nil 时使用 Retryable：实现了 Retryable() bool 的错误按其声明，
// 其余错误都重试。Unrecoverable 包装的错误总是立即返回。
package xretry
