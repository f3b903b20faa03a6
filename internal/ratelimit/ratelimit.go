// Package ratelimit provides a keyed token-bucket rate limiter used to
// pace outbound requests against the sync service. Each key (endpoint
// category: books, payloads, sessions) gets an independent limiter so
// a heavy payload upload cannot starve session sync.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter hands out one token bucket per key, all sharing
// the same rate and burst settings.
type KeyedRateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a keyed limiter allowing rps requests per second with
// the given burst per key.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports without blocking whether a request under key may
// proceed now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Wait blocks until a request under key may proceed or ctx is
// canceled.
func (k *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(key).Wait(ctx)
}

func (k *KeyedRateLimiter) bucket(key string) *rate.Limiter {
	k.mu.RLock()
	b, ok := k.buckets[key]
	k.mu.RUnlock()
	if ok {
		return b
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok = k.buckets[key]; ok {
		return b
	}
	b = rate.NewLimiter(k.limit, k.burst)
	k.buckets[key] = b
	return b
}
