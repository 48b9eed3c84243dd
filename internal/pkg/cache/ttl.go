package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMaxSize = 10000
	defaultTTL     = 5 * time.Second
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache 有界 LRU 缓存，条目超过 ttl 后视为未命中
type TTLCache[K comparable, V any] struct {
	lru *lru.Cache[K, entry[V]]
	ttl time.Duration
	now func() time.Time
}

// NewTTL 创建缓存，size 或 ttl 非正时使用默认值
func NewTTL[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	if size <= 0 {
		size = defaultMaxSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	l, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: l, ttl: ttl, now: time.Now}, nil
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, entry[V]{value: value, storedAt: c.now()})
}

func (c *TTLCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}

func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}
