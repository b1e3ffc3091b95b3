// Package ratelimit implements the multi-scope keyed token bucket the
// coordinator applies to every inbound request.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurstMultiplier = 1.5
	idleEvictionAge        = 300 * time.Second
	sweepInterval          = 60 * time.Second
)

type bucket struct {
	limiter    *rate.Limiter
	ratePerSec float64
	lastAccess time.Time
}

// Limiter is a keyed token-bucket store. Each distinct key (e.g.
// "global:1.2.3.4", "pairing:1.2.3.4", "commands:<session>", "ws:<client>")
// gets its own independent bucket, lazily created on first access.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	stopCh chan struct{}
	doneCh chan struct{}
}

func New() *Limiter {
	l := &Limiter{buckets: make(map[string]*bucket)}
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.sweepLoop()
	return l
}

// Close stops the idle-eviction sweep goroutine.
func (l *Limiter) Close() {
	close(l.stopCh)
	<-l.doneCh
}

// Check attempts to deduct one token from key's bucket, creating it with
// capacity `burst` (or ceil(ratePerSecond*1.5) if burst <= 0) on first use.
// It returns whether the request is allowed and, if not, the number of
// seconds the caller should wait before retrying.
func (l *Limiter) Check(key string, ratePerSecond float64, burst int) (allowed bool, retryAfterSeconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.ratePerSec != ratePerSecond {
		capacity := burst
		if capacity <= 0 {
			capacity = int(math.Ceil(ratePerSecond * defaultBurstMultiplier))
			if capacity < 1 {
				capacity = 1
			}
		}
		b = &bucket{
			limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), capacity),
			ratePerSec: ratePerSecond,
		}
		l.buckets[key] = b
	}
	b.lastAccess = time.Now()

	if b.limiter.Allow() {
		return true, 0
	}

	tokens := b.limiter.Tokens()
	if tokens >= 1 {
		// Allow() can reject even with Tokens() >= 1 under max burst edge
		// cases; treat as effectively immediate retry.
		return false, 0
	}
	wait := (1 - tokens) / ratePerSecond
	return false, wait
}

func (l *Limiter) sweepLoop() {
	defer close(l.doneCh)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idleEvictionAge)
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// BucketCount reports the number of live buckets (for tests/diagnostics).
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
