// Package phonelock guards against a subscriber opening two concurrent
// purchase attempts. Acquire is a compare-and-swap on a per-phone flag:
// it succeeds for at most one holder until Release.
package phonelock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is the per-phone pending-purchase flag
type Guard interface {
	// Acquire attempts to set the pending flag for the phone.
	// Returns false if another purchase already holds it.
	Acquire(ctx context.Context, phone string) (bool, error)

	// Release clears the pending flag. Releasing an unheld flag is a no-op.
	Release(ctx context.Context, phone string) error
}

// RedisGuard implements the guard with SETNX and a safety TTL so a crashed
// node cannot strand a phone number forever.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a redis-backed guard
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) key(phone string) string {
	return "hotspot:pending-purchase:" + phone
}

// Acquire sets the pending flag if it is not already held
func (g *RedisGuard) Acquire(ctx context.Context, phone string) (bool, error) {
	return g.client.SetNX(ctx, g.key(phone), "1", g.ttl).Result()
}

// Release clears the pending flag
func (g *RedisGuard) Release(ctx context.Context, phone string) error {
	return g.client.Del(ctx, g.key(phone)).Err()
}

// MemoryGuard implements the guard in process memory. Suitable for
// single-node deployments and tests.
type MemoryGuard struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewMemoryGuard creates an in-memory guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{pending: make(map[string]struct{})}
}

// Acquire sets the pending flag if it is not already held
func (g *MemoryGuard) Acquire(ctx context.Context, phone string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.pending[phone]; held {
		return false, nil
	}
	g.pending[phone] = struct{}{}
	return true, nil
}

// Release clears the pending flag
func (g *MemoryGuard) Release(ctx context.Context, phone string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, phone)
	return nil
}
