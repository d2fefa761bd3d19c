package xkeylock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidShardCount 分片数不是不超过 65536 的 2 的幂。
var ErrInvalidShardCount = errors.New("xkeylock: invalid shard count")

const maxShards = 1 << 16

// Option 配置 KeyLock。
type Option func(*KeyLock)

// WithShardCount 设置分片数，默认 32。
func WithShardCount(n int) Option {
	return func(kl *KeyLock) { kl.shardCount = n }
}

// KeyLock 按 key 互斥的锁，零值不可用，使用 New 创建。
type KeyLock struct {
	shardCount int
	shards     []shard
	mask       uint64
}

type shard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// slot 的 token 容量为 1，写入成功即持有。users 计持有者与等待者，
// 只在分片锁内修改，归零时删除。
type slot struct {
	token chan struct{}
	users int
}

// New 创建 KeyLock。
func New(opts ...Option) (*KeyLock, error) {
	kl := &KeyLock{shardCount: 32}
	for _, opt := range opts {
		if opt != nil {
			opt(kl)
		}
	}
	n := kl.shardCount
	if n <= 0 || n > maxShards || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, n)
	}
	kl.shards = make([]shard, n)
	for i := range kl.shards {
		kl.shards[i].slots = make(map[string]*slot)
	}
	kl.mask = uint64(n - 1)
	return kl, nil
}

func (kl *KeyLock) shardOf(key string) *shard {
	return &kl.shards[xxhash.Sum64String(key)&kl.mask]
}

func (kl *KeyLock) join(key string) *slot {
	sh := kl.shardOf(key)
	sh.mu.Lock()
	s, ok := sh.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		sh.slots[key] = s
	}
	s.users++
	sh.mu.Unlock()
	return s
}

func (kl *KeyLock) leave(key string, s *slot) {
	sh := kl.shardOf(key)
	sh.mu.Lock()
	if s.users--; s.users == 0 {
		delete(sh.slots, key)
	}
	sh.mu.Unlock()
}

func (kl *KeyLock) unlocker(key string, s *slot) func() {
	return sync.OnceFunc(func() {
		<-s.token
		kl.leave(key, s)
	})
}

// Lock 阻塞到持有 key 或 ctx 结束。返回的 unlock 可重复调用，只有首次生效。
// 锁不可重入。
func (kl *KeyLock) Lock(ctx context.Context, key string) (unlock func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := kl.join(key)
	select {
	case s.token <- struct{}{}:
		return kl.unlocker(key, s), nil
	case <-ctx.Done():
		kl.leave(key, s)
		return nil, ctx.Err()
	}
}

// TryLock 不阻塞，key 被占用时返回 false。
func (kl *KeyLock) TryLock(key string) (unlock func(), ok bool) {
	s := kl.join(key)
	select {
	case s.token <- struct{}{}:
		return kl.unlocker(key, s), true
	default:
		kl.leave(key, s)
		return nil, false
	}
}

// Len 返回有持有者或等待者的 key 数。
func (kl *KeyLock) Len() int {
	n := 0
	for i := range kl.shards {
		sh := &kl.shards[i]
		sh.mu.Lock()
		n += len(sh.slots)
		sh.mu.Unlock()
	}
	return n
}
