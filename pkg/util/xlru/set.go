package xlru

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MaxCapacity Capacity 上限。
const MaxCapacity = 1 << 24

var (
	ErrInvalidCapacity = errors.New("xlru: capacity out of range")
	ErrInvalidTTL      = errors.New("xlru: negative ttl")
)

// Config Set 参数。TTL 为 0 表示不过期。
type Config struct {
	Capacity int
	TTL      time.Duration
}

// Counters 查询计数快照，只统计 Contains。
type Counters struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// Set 并发安全。Close 之后所有查询返回 false，Add 被忽略。
type Set[K comparable] struct {
	lru    *expirable.LRU[K, struct{}]
	hits   atomic.Uint64
	misses atomic.Uint64
	closed atomic.Bool
	stop   sync.Once
}

// New 创建 Set。
func New[K comparable](cfg Config) (*Set[K], error) {
	switch {
	case cfg.Capacity <= 0 || cfg.Capacity > MaxCapacity:
		return nil, ErrInvalidCapacity
	case cfg.TTL < 0:
		return nil, ErrInvalidTTL
	}
	return &Set[K]{lru: expirable.NewLRU[K, struct{}](cfg.Capacity, nil, cfg.TTL)}, nil
}

// Contains 查询并计数，命中时更新 LRU 顺序。
func (s *Set[K]) Contains(key K) bool {
	if s.closed.Load() {
		return false
	}
	_, ok := s.lru.Get(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return ok
}

// Has 查询但不计数，也不更新顺序。
func (s *Set[K]) Has(key K) bool {
	if s.closed.Load() {
		return false
	}
	return s.lru.Contains(key)
}

// Add 记录 key，返回是否挤出了最旧的条目。
func (s *Set[K]) Add(key K) (evicted bool) {
	if s.closed.Load() {
		return false
	}
	return s.lru.Add(key, struct{}{})
}

// Forget 移除 key。
func (s *Set[K]) Forget(key K) bool {
	if s.closed.Load() {
		return false
	}
	return s.lru.Remove(key)
}

// Len 可能包含已过期但尚未清理的条目。
func (s *Set[K]) Len() int {
	if s.closed.Load() {
		return 0
	}
	return s.lru.Len()
}

// Counters 返回命中计数和当前条目数的快照。
func (s *Set[K]) Counters() Counters {
	return Counters{Hits: s.hits.Load(), Misses: s.misses.Load(), Len: s.Len()}
}

// Close 清空并停止清理 goroutine，可重复调用。
func (s *Set[K]) Close() {
	s.closed.Store(true)
	s.stop.Do(func() {
		s.lru.Purge()
		closeDone(s.lru)
	})
}

// closeDone 关闭 expirable.LRU 未导出的 done 通道，令清理 goroutine 退出。
//
// 设计决策: golang-lru v2.0.7 没有公开的停止方法。字段不存在或类型不符时
// 什么都不做并返回 false，升级依赖时由测试发现。
func closeDone(lru any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	f := v.Elem().FieldByName("done")
	if !f.IsValid() || f.Type() != reflect.TypeFor[chan struct{}]() || f.IsNil() {
		return false
	}
	close(*(*chan struct{})(unsafe.Pointer(f.UnsafeAddr()))) //nolint:gosec // 上游未导出字段
	return true
}
