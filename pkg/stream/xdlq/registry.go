package xdlq

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/omeyang/xstream/pkg/observability/xlog"
	"github.com/omeyang/xstream/pkg/util/xkeylock"
)

// Registry 按身份共享 Collector 的引用计数注册表。
//
// 同一身份的构建与释放由 xkeylock 串行化，保证任意时刻至多一个存活的生产者；
// 条目表和引用计数由 mu 保护。网络操作（构建、Flush）不在 mu 内执行。
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultKey string

	locks   *xkeylock.KeyLock
	factory ClientFactory
	logger  xlog.Logger
}

type entry struct {
	collector *Collector
	refs      int
}

// RegistryOption 配置 Registry。
type RegistryOption func(*registryOptions)

type registryOptions struct {
	factory    ClientFactory
	logger     xlog.Logger
	lockShards int
}

// WithClientFactory 设置生产者工厂，nil 被忽略。
func WithClientFactory(f ClientFactory) RegistryOption {
	return func(o *registryOptions) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithRegistryLogger 设置日志，nil 被忽略。
func WithRegistryLogger(l xlog.Logger) RegistryOption {
	return func(o *registryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLockShards 设置身份锁的分片数，必须是 2 的幂。
func WithLockShards(n int) RegistryOption {
	return func(o *registryOptions) {
		o.lockShards = n
	}
}

// NewRegistry 创建独立的注册表，测试中用于隔离进程级状态。
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{
		factory:    DefaultClientFactory,
		lockShards: 16,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	locks, err := xkeylock.New(xkeylock.WithShardCount(o.lockShards))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &Registry{
		entries: make(map[string]*entry),
		locks:   locks,
		factory: o.factory,
		logger:  o.logger.With(xlog.Component(componentName)),
	}, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic("xdlq: default registry: " + err.Error())
	}
	return r
})

// DefaultRegistry 返回进程级注册表。
func DefaultRegistry() *Registry { return defaultRegistry() }

// GetOrCreate 在进程级注册表上调用 Registry.GetOrCreate。
func GetOrCreate(ctx context.Context, cfg CollectorConfig) (*Handle, error) {
	return DefaultRegistry().GetOrCreate(ctx, cfg)
}

// Clear 在进程级注册表上调用 Registry.Clear。
func Clear() { DefaultRegistry().Clear() }

// Acquire 返回身份对应 Collector 的句柄，必要时构建。
// 构建失败返回包装了 ErrProducerConstruction 的错误，不留下任何条目。
func (r *Registry) Acquire(ctx context.Context, cfg CollectorConfig) (*Handle, error) {
	if ctx == nil {
		panic("xdlq: nil Context")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := cfg.Identity()

	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if h, ok := r.retain(key); ok {
		return h, nil
	}

	c, err := r.construct(key, cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[key] = &entry{collector: c, refs: 1}
	r.mu.Unlock()

	h := newHandle(r, key, c)
	r.logger.Info(ctx, "dlq collector created", attrIdentity(key), attrHandleID(h.id))
	return h, nil
}

// retain 为已存在的条目增加引用。
func (r *Registry) retain(key string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	e.refs++
	return newHandle(r, key, e.collector), true
}

func (r *Registry) construct(key string, cfg CollectorConfig) (*Collector, error) {
	client, admin := cfg.Client, cfg.Admin
	if client == nil {
		var err error
		client, admin, err = r.factory(cfg.ProducerConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProducerConstruction, err)
		}
		if client == nil {
			return nil, fmt.Errorf("%w: %w", ErrProducerConstruction, ErrNilClient)
		}
	} else if admin == nil {
		var err error
		if admin, err = adminFor(client); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProducerConstruction, err)
		}
	}

	c, err := newCollector(key, client, admin, cfg, r.logger)
	if err != nil {
		if admin != nil {
			admin.Close()
		}
		if cfg.Client == nil {
			client.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrProducerConstruction, err)
	}
	return c, nil
}

// GetOrCreate 与 Acquire 相同，并把该条目设为默认 Collector，
// 供没有独立生产者配置的处理器使用。
func (r *Registry) GetOrCreate(ctx context.Context, cfg CollectorConfig) (*Handle, error) {
	h, err := r.Acquire(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	prev := r.defaultKey
	r.defaultKey = h.key
	r.mu.Unlock()
	if prev != "" && prev != h.key {
		r.logger.Warn(ctx, "dlq default collector replaced", attrIdentity(h.key), slog.String("previous", prev))
	}
	return h, nil
}

// AcquireDefault 为默认 Collector 增加引用。未注册时返回 ErrCollectorNotRegistered。
func (r *Registry) AcquireDefault() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaultKey == "" {
		return nil, ErrCollectorNotRegistered
	}
	e, ok := r.entries[r.defaultKey]
	if !ok {
		return nil, ErrCollectorNotRegistered
	}
	e.refs++
	return newHandle(r, r.defaultKey, e.collector), nil
}

// Release 释放句柄。引用归零时移除条目并释放 Collector，释放错误只记录日志。
// 同一句柄第二次释放返回 ErrHandleReleased。
func (r *Registry) Release(h *Handle) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return ErrHandleReleased
	}

	unlock, err := r.locks.Lock(context.Background(), h.key)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	e, ok := r.entries[h.key]
	if !ok || e.collector != h.collector {
		// 条目已被 Clear 强制释放。
		r.mu.Unlock()
		return nil
	}
	e.refs--
	refs := e.refs
	if refs == 0 {
		delete(r.entries, h.key)
		if r.defaultKey == h.key {
			r.defaultKey = ""
		}
	}
	r.mu.Unlock()

	if refs == 0 {
		r.dispose(h.key, e.collector)
	}
	return nil
}

func (r *Registry) dispose(key string, c *Collector) {
	ctx := context.Background()
	if err := c.Dispose(ctx); err != nil {
		r.logger.Error(ctx, "dlq collector dispose failed", attrIdentity(key), xlog.Err(err))
		return
	}
	r.logger.Info(ctx, "dlq collector disposed", attrIdentity(key))
}

// Clear 强制释放调用时存在的所有条目，用于测试清理和进程退出。
// 每个条目在其身份锁内摘除并释放，同一身份上并发的 Acquire 要么复用旧实例，
// 要么在旧实例释放之后才构建新实例。
// 仍处于 Active 状态的处理器会持有已释放的 Collector，属于调用方错误。
func (r *Registry) Clear() {
	r.mu.Lock()
	keys := slices.Collect(maps.Keys(r.entries))
	r.mu.Unlock()

	for _, key := range keys {
		// Background 不会取消，Lock 不会失败。
		unlock, _ := r.locks.Lock(context.Background(), key)
		r.mu.Lock()
		e, ok := r.entries[key]
		if ok {
			delete(r.entries, key)
			if r.defaultKey == key {
				r.defaultKey = ""
			}
		}
		r.mu.Unlock()
		if ok {
			r.dispose(key, e.collector)
		}
		unlock()
	}
}

// Close 对每个未释放的条目记录泄漏警告，然后 Clear。不会失败。
func (r *Registry) Close() {
	r.mu.Lock()
	leaked := make(map[string]int, len(r.entries))
	for key, e := range r.entries {
		leaked[key] = e.refs
	}
	r.mu.Unlock()

	for key, refs := range leaked {
		r.logger.Warn(context.Background(), "dlq collector leaked at shutdown", attrIdentity(key), attrRefs(refs))
	}
	r.Clear()
}

// Len 返回条目数。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Handle Collector 的引用句柄。Release 之后不应再使用 Collector。
type Handle struct {
	id        string
	key       string
	collector *Collector
	registry  *Registry
	released  atomic.Bool
}

func newHandle(r *Registry, key string, c *Collector) *Handle {
	return &Handle{
		id:        uuid.NewString(),
		key:       key,
		collector: c,
		registry:  r,
	}
}

// ID 返回句柄的唯一标识，用于日志关联。
func (h *Handle) ID() string { return h.id }

// Identity 返回身份键。
func (h *Handle) Identity() string { return h.key }

// Collector 返回共享的 Collector。
func (h *Handle) Collector() *Collector { return h.collector }

// Released 报告句柄是否已释放。
func (h *Handle) Released() bool { return h.released.Load() }

// Release 等价于 Registry.Release(h)。
func (h *Handle) Release() error {
	if h == nil {
		return ErrHandleReleased
	}
	return h.registry.Release(h)
}
