package xlog

import "sync/atomic"

var global atomic.Pointer[LevelLogger]

// Default 返回全局 Logger，未设置时惰性创建 stderr、Info、text 的默认实例。
func Default() LevelLogger {
	for {
		if l := global.Load(); l != nil {
			return *l
		}
		l, _, err := New().Build()
		if err != nil {
			panic(err)
		}
		if global.CompareAndSwap(nil, &l) {
			return l
		}
	}
}

// SetDefault 替换全局 Logger，nil 被忽略。
func SetDefault(l LevelLogger) {
	if l != nil {
		global.Store(&l)
	}
}

// ResetDefault 清除全局 Logger，下次 Default 重新创建。用于测试。
func ResetDefault() { global.Store(nil) }
