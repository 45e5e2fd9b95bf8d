package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/paperscope/paperscope/internal/core"
)

// PrefixLength is the input prefix length used by PrefixKey.
const PrefixLength = 100

// CacheKey derives a memoization key from the calling function, model and full input.
func CacheKey(function, model, input string) string {
	sum := sha256.Sum256([]byte(input))
	return function + "|" + model + "|" + hex.EncodeToString(sum[:])
}

// PrefixKey derives the coarser key built from the first PrefixLength runes of input.
// Distinct inputs that share the prefix collide.
func PrefixKey(function, model, input string) string {
	runes := []rune(input)
	if len(runes) > PrefixLength {
		runes = runes[:PrefixLength]
	}
	return function + "|" + model + "|" + string(runes)
}

// ResponseCache memoizes successful results for the lifetime of the process.
// Concurrent misses on one key share a single call. Errors are not cached.
type ResponseCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewResponseCache returns an empty cache.
func NewResponseCache[T any]() *ResponseCache[T] {
	return &ResponseCache[T]{entries: make(map[string]T)}
}

// Get returns the cached value for key.
func (c *ResponseCache[T]) Get(key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Do returns the cached value for key, or calls fn and caches its result.
// The boolean reports whether a successful value came from the cache.
//
// The shared fn ignores caller cancellation; each caller stops waiting when
// its own ctx is done.
func (c *ResponseCache[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil {
		v, err := fn(ctx)
		return v, false, err
	}
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}

	shared := context.WithoutCancel(ctx)
	var called atomic.Bool
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		called.Store(true)
		v, err := fn(shared)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.entries == nil {
			c.entries = make(map[string]T)
		}
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	})

	var v T
	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case res := <-ch:
		if res.Val != nil {
			v = res.Val.(T)
		}
		hit := res.Err == nil && !called.Load()
		if hit {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
		return v, hit, res.Err
	}
}

// Stats reports entry count and hit/miss counters.
func (c *ResponseCache[T]) Stats() core.CacheStats {
	if c == nil {
		return core.CacheStats{}
	}
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return core.CacheStats{Entries: size, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
