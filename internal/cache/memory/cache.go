package memory

import (
	"context"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

type Config[K comparable, V any] struct {
	// CleanupInterval - как часто выкидывать просроченное, по умолчанию 5 минут
	CleanupInterval time.Duration
	// OnEvict вызывается для записей, удаленных по TTL, вне мьютекса
	OnEvict func(key K, value V)
}

// Cache - in-memory кеш с TTL. Используется как хранилище чатовых сессий:
// по истечении TTL сессия выселяется и OnEvict освобождает ее ресурсы.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]item[V]
	interval time.Duration
	onEvict  func(K, V)
	stopChan chan struct{}
	stopped  bool
}

func New[K comparable, V any](cfg Config[K, V]) *Cache[K, V] {
	return NewWithContext(context.Background(), cfg)
}

func NewWithContext[K comparable, V any](ctx context.Context, cfg Config[K, V]) *Cache[K, V] {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	c := &Cache[K, V]{
		items:    make(map[K]item[V]),
		interval: cfg.CleanupInterval,
		onEvict:  cfg.OnEvict,
		stopChan: make(chan struct{}),
	}
	go c.cleanup(ctx)
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || time.Now().After(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Touch продлевает TTL существующей записи
func (c *Cache[K, V]) Touch(key K, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok || time.Now().After(it.expiresAt) {
		return false
	}
	it.expiresAt = time.Now().Add(ttl)
	c.items[key] = it
	return true
}

// Delete удаляет запись без OnEvict и возвращает ее значение
func (c *Cache[K, V]) Delete(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	delete(c.items, key)
	return it.value, ok
}

// Keys - ключи всех записей, включая просроченные, но еще не вычищенные
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopChan)
	}
	c.mu.Unlock()
}

func (c *Cache[K, V]) cleanup(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[K, V]) removeExpired() {
	type evicted struct {
		key   K
		value V
	}
	var out []evicted

	c.mu.Lock()
	now := time.Now()
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			out = append(out, evicted{k, it.value})
		}
	}
	c.mu.Unlock()

	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.value)
	}
}
