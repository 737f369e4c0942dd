// Package ratelimit provides per-resource admission control for downstream
// calls (database connections, LLM requests) that would otherwise let a
// burst of concurrent orchestrator work overrun a shared dependency.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Config configures one resource's token bucket.
type Config struct {
	// RPS is the sustained rate, in permits per second.
	RPS float64
	// Burst is the maximum number of permits usable without replenishment.
	Burst int
}

// Limiter admits callers into a named resource pool, blocking until a
// token is available or the context is done. Unlike a plain boolean
// admission check, Acquire queues callers fairly: x/time/rate.Wait
// reserves a slot and sleeps for exactly as long as needed, so waiters
// are served in the order they arrive.
type Limiter interface {
	// Acquire blocks until a permit for resource is available or ctx is
	// done. It returns an error naming the unknown resource if none was
	// registered under that name.
	Acquire(ctx context.Context, resource string) error
}

type limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter with one token bucket per entry in cfgs.
func New(cfgs map[string]Config) Limiter {
	buckets := make(map[string]*rate.Limiter, len(cfgs))
	for name, cfg := range cfgs {
		buckets[name] = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &limiter{buckets: buckets}
}

func (l *limiter) Acquire(ctx context.Context, resource string) error {
	l.mu.RLock()
	b, ok := l.buckets[resource]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ratelimit: unknown resource %q", resource)
	}
	return b.Wait(ctx)
}
