package server

import (
	"errors"
	"sync"

	"github.com/cfcache/cfcache/internal/cache"
)

// SharedCache 为 HTTP 处理器提供串行化的缓存访问。
type SharedCache struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewSharedCache 包装一个已初始化的 Cache。
func NewSharedCache(c *cache.Cache) (*SharedCache, error) {
	if c == nil {
		return nil, errors.New("cache is required")
	}
	return &SharedCache{cache: c}, nil
}

// With 在持有互斥锁期间执行 fn。
func (s *SharedCache) With(fn func(*cache.Cache) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cache)
}
