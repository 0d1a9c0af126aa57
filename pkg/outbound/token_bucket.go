package outbound

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket rate limits outbound calls. Tokens refill at a constant rate
// up to the bucket capacity, so short bursts are allowed while the average
// rate holds. Thread-safe.
type TokenBucket struct {
	capacity   int64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket with the given capacity (burst size)
// and refill rate in tokens per second.
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Take attempts to consume n tokens. Returns false when the bucket cannot
// cover the request.
func (tb *TokenBucket) Take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks until n tokens can be consumed or the context ends. This is
// the pacing primitive: successive callers are spaced out at the refill
// rate instead of failing.
func (tb *TokenBucket) Wait(ctx context.Context, n int64) error {
	for {
		if tb.Take(n) {
			return nil
		}

		timer := time.NewTimer(tb.TimeUntilAvailable(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TimeUntilAvailable reports how long until n tokens refill at the current
// rate, assuming no other takers. Zero when the tokens are already there.
func (tb *TokenBucket) TimeUntilAvailable(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	deficit := float64(n) - tb.tokens
	if deficit <= 0 {
		return 0
	}
	if tb.refillRate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(deficit / tb.refillRate * float64(time.Second))
}

// Remaining returns the whole tokens currently available.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int64(tb.tokens)
}

func (tb *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
}
