package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/edulock/license-gateway/internal/clock"
)

// Entries idle longer than this are dropped the next time a new client
// arrives, so the per-IP map cannot grow without bound.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	rps   float64
	burst int
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newLimiterPool(rps float64, burst int, clk clock.Clock) *limiterPool {
	return &limiterPool{
		rps:     rps,
		burst:   burst,
		clock:   clk,
		entries: make(map[string]*limiterEntry),
	}
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[ip]; ok {
		e.lastSeen = now
		return e.limiter
	}

	p.evictIdle(now)
	e := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(p.rps), p.burst),
		lastSeen: now,
	}
	p.entries[ip] = e
	return e.limiter
}

// evictIdle runs under p.mu.
func (p *limiterPool) evictIdle(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, e := range p.entries {
		if e.lastSeen.Before(cutoff) {
			delete(p.entries, ip)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimit applies a per-client-IP token bucket. It exists to protect the
// validate endpoint, which installations poll on a schedule; it is not a
// general multi-tenant rate-limiting policy.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst, clock.New())

	return func(c *gin.Context) {
		if !pool.get(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
