package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleTTL = 10 * time.Minute

// clientRateLimiter keeps one token bucket per client key. Buckets idle for longer than
// visitorIdleTTL are dropped on the next call after the TTL elapses.
type clientRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientRateLimiter(limit rate.Limit, burst int) *clientRateLimiter {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *clientRateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastPrune) > visitorIdleTTL {
		l.prune(now)
	}
	entry, ok := l.visitors[key]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

func (l *clientRateLimiter) prune(now time.Time) {
	for key, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > visitorIdleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastPrune = now
}
