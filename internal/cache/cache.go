package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modelgate/internal/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownNamespace = errors.New("cache: unknown namespace")

const (
	defaultMaxEntries = 10000
	defaultSweepEvery = 100
)

type entry struct {
	ns        Namespace
	value     any
	createdAt time.Time
	expiresAt time.Time
	hits      int64
	size      int
}

type counters struct {
	hits   int64
	misses int64
	sets   int64
}

// Options 缓存配置
type Options struct {
	TTLs       map[Namespace]time.Duration // nil 时使用 DefaultTTLs
	MaxEntries int
	SweepEvery int // 每 N 次写入清扫一次过期条目
	Now        func() time.Time
}

// Cache 按命名空间划分 TTL 的响应缓存
// Expired entries are dropped lazily on lookup and by a sweep every SweepEvery
// inserts; the LRU bound caps total size.
type Cache struct {
	mu         sync.Mutex
	ttls       map[Namespace]time.Duration
	entries    *lru.Cache[string, *entry]
	sweepEvery int
	inserts    int
	counters   map[Namespace]*counters
	evictWhy   string
	group      singleflight.Group
	now        func() time.Time
}

func New(opts Options) (*Cache, error) {
	ttls := opts.TTLs
	if ttls == nil {
		ttls = DefaultTTLs
	}
	c := &Cache{
		ttls:       make(map[Namespace]time.Duration, len(ttls)),
		sweepEvery: opts.SweepEvery,
		counters:   make(map[Namespace]*counters, len(ttls)),
		now:        opts.Now,
	}
	for ns, ttl := range ttls {
		if ttl <= 0 {
			return nil, fmt.Errorf("cache: namespace %s must have a positive ttl", ns)
		}
		c.ttls[ns] = ttl
		c.counters[ns] = &counters{}
	}
	if c.sweepEvery <= 0 {
		c.sweepEvery = defaultSweepEvery
	}
	if c.now == nil {
		c.now = time.Now
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	entries, err := lru.NewWithEvict(maxEntries, func(_ string, e *entry) {
		metrics.CacheEvictions.WithLabelValues(string(e.ns), c.evictWhy).Inc()
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	c.evictWhy = "capacity"
	return c, nil
}

// TTL returns the fixed ttl of a namespace.
func (c *Cache) TTL(ns Namespace) (time.Duration, bool) {
	ttl, ok := c.ttls[ns]
	return ttl, ok
}

// Key 构造缓存键：命名空间 + 原始键 + 参数包的稳定哈希
// json.Marshal sorts map keys, so equal parameter bags hash identically.
func Key(ns Namespace, key string, params any) string {
	var b strings.Builder
	b.WriteString(string(ns))
	b.WriteByte(':')
	b.WriteString(key)
	if params == nil {
		return b.String()
	}
	data, err := json.Marshal(params)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", params))
	}
	sum := blake2b.Sum256(data)
	b.WriteByte('#')
	b.WriteString(hex.EncodeToString(sum[:16]))
	return b.String()
}

// Get 查找缓存；过期条目在此处被删除
func (c *Cache) Get(ns Namespace, key string, params any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(ns, Key(ns, key, params))
}

func (c *Cache) getLocked(ns Namespace, k string) (any, bool) {
	cnt, ok := c.counters[ns]
	if !ok {
		return nil, false
	}
	e, ok := c.entries.Get(k)
	if ok && c.now().After(e.expiresAt) {
		c.removeLocked(k, "expired")
		ok = false
	}
	if !ok {
		cnt.misses++
		metrics.CacheLookups.WithLabelValues(string(ns), "miss").Inc()
		return nil, false
	}
	e.hits++
	cnt.hits++
	metrics.CacheLookups.WithLabelValues(string(ns), "hit").Inc()
	return e.value, true
}

// Set 写入缓存，过期时间 = 写入时间 + 命名空间 TTL
func (c *Cache) Set(ns Namespace, key string, value any, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(ns, Key(ns, key, params), value)
}

func (c *Cache) setLocked(ns Namespace, k string, value any) error {
	ttl, ok := c.ttls[ns]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	size := 0
	if data, err := json.Marshal(value); err == nil {
		size = len(data)
	}
	now := c.now()
	c.entries.Add(k, &entry{
		ns:        ns,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		size:      size,
	})
	c.counters[ns].sets++

	c.inserts++
	if c.inserts%c.sweepEvery == 0 {
		if n := c.sweepLocked(); n > 0 {
			log.Debugf("cache: swept %d expired entries", n)
		}
	}
	return nil
}

// GetOrSet 未命中时调用 fetch 并写入；同一键的并发 fetch 只执行一次
// A fetch error is returned to every waiter and nothing is stored.
func (c *Cache) GetOrSet(ctx context.Context, ns Namespace, key string, params any, fetch func(ctx context.Context) (any, error)) (any, error) {
	if _, ok := c.ttls[ns]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	k := Key(ns, key, params)

	c.mu.Lock()
	v, ok := c.getLocked(ns, k)
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err, _ := c.group.Do(k, func() (any, error) {
		c.mu.Lock()
		e, ok := c.entries.Peek(k)
		c.mu.Unlock()
		if ok && !c.now().After(e.expiresAt) {
			return e.value, nil
		}

		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.setLocked(ns, k, val); err != nil {
			return nil, err
		}
		return val, nil
	})
	return v, err
}

// Invalidate 删除单个键；key 为空时清空整个命名空间
func (c *Cache) Invalidate(ns Namespace, key string, params any) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key != "" {
		k := Key(ns, key, params)
		if c.entries.Contains(k) {
			c.removeLocked(k, "invalidated")
			return 1
		}
		return 0
	}

	removed := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && e.ns == ns {
			c.removeLocked(k, "invalidated")
			removed++
		}
	}
	return removed
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *Cache) sweepLocked() int {
	now := c.now()
	removed := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && now.After(e.expiresAt) {
			c.removeLocked(k, "expired")
			removed++
		}
	}
	return removed
}

func (c *Cache) removeLocked(k, why string) {
	c.evictWhy = why
	c.entries.Remove(k)
	c.evictWhy = "capacity"
}

// GetAs 类型化读取；缓存值类型不符时视为未命中
func GetAs[T any](c *Cache, ns Namespace, key string, params any) (T, bool) {
	var zero T
	v, ok := c.Get(ns, key, params)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// GetOrSetAs is the typed form of GetOrSet.
func GetOrSetAs[T any](ctx context.Context, c *Cache, ns Namespace, key string, params any, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.GetOrSet(ctx, ns, key, params, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: %s value has type %T", ns, v)
	}
	return t, nil
}
