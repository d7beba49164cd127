// Package ratex provides a small per-key rate limiter registry on top of
// golang.org/x/time/rate. It is used to throttle guessable-secret operations
// (join-PIN attempts) per caller.
package ratex

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the limiting parameters for one registry.
type Config struct {
	// RequestsPerWindow is the number of requests allowed in Window.
	RequestsPerWindow int
	// Window is the time window for rate limiting.
	Window time.Duration
	// Burst allows temporary bursts above the steady rate.
	Burst int
}

// Limiter manages independent token buckets keyed by an arbitrary string
// (user id, IP, ...). Idle buckets are dropped periodically to bound memory.
type Limiter struct {
	mu          sync.Mutex
	limiters    map[string]*entry
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const cleanupInterval = 10 * time.Minute

// NewLimiter builds a registry from cfg. Zero or negative fields fall back to
// a strict default of 5 requests per minute.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerWindow
	}

	return &Limiter{
		limiters:    make(map[string]*entry),
		limit:       rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > cleanupInterval {
				delete(l.limiters, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now

	return e.limiter.Allow()
}
