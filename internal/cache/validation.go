// Package cache holds the gateway's process-local caches. Both are rebuilt
// from scratch on restart; nothing here is shared across processes.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/db"
)

// ValidationCache remembers recent successful validations so a chatty
// installation doesn't hit the license store on every call. Only positive
// results are stored: caching a denial would mask a just-corrected license
// for a full TTL.
type ValidationCache struct {
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*validationEntry
}

type validationEntry struct {
	result   *db.LicenseWithServer
	storedAt time.Time
}

func NewValidationCache(ttl time.Duration, clk clock.Clock, logger *zap.Logger) *ValidationCache {
	return &ValidationCache{
		ttl:     ttl,
		clock:   clk,
		logger:  logger,
		entries: make(map[string]*validationEntry),
	}
}

func validationKey(licenseKey, districtUID string) string {
	return licenseKey + "|" + districtUID
}

// Get returns a miss for entries at or past the TTL; the sweep is not relied
// on for correctness.
func (c *ValidationCache) Get(licenseKey, districtUID string) (*db.LicenseWithServer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[validationKey(licenseKey, districtUID)]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.result, true
}

func (c *ValidationCache) Put(licenseKey, districtUID string, result *db.LicenseWithServer) {
	c.mu.Lock()
	c.entries[validationKey(licenseKey, districtUID)] = &validationEntry{
		result:   result,
		storedAt: c.clock.Now(),
	}
	c.mu.Unlock()
}

// SweepExpired evicts stale entries. Memory hygiene only; Get already checks
// freshness.
func (c *ValidationCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on a fixed interval until the context is cancelled.
func (c *ValidationCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.SweepExpired(); n > 0 {
				c.logger.Debug("swept validation cache", zap.Int("evicted", n))
			}
		}
	}
}

func (c *ValidationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
