package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/core"
	"github.com/edulock/license-gateway/internal/db"
)

func validationResult(key, districtUID string) *db.LicenseWithServer {
	return &db.LicenseWithServer{
		License: core.License{
			LicenseKey:  key,
			DistrictUID: districtUID,
			PlanTier:    core.PlanEnterprise,
			IsActive:    true,
		},
		ServerURL: "https://d1.school.org",
	}
}

func TestValidationCachePutGet(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewValidationCache(5*time.Minute, clk, zap.NewNop())

	_, ok := c.Get("LK-1", "D1")
	assert.False(t, ok)

	want := validationResult("LK-1", "D1")
	c.Put("LK-1", "D1", want)

	got, ok := c.Get("LK-1", "D1")
	require.True(t, ok)
	assert.Same(t, want, got)

	// Different district is a different key.
	_, ok = c.Get("LK-1", "D2")
	assert.False(t, ok)
}

func TestValidationCacheNeverServesStaleEntry(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewValidationCache(5*time.Minute, clk, zap.NewNop())

	c.Put("LK-1", "D1", validationResult("LK-1", "D1"))

	clk.Advance(5*time.Minute - time.Second)
	_, ok := c.Get("LK-1", "D1")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("LK-1", "D1")
	assert.False(t, ok, "entry at the TTL boundary must be a miss")
}

func TestValidationCacheSweepIsHygieneOnly(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewValidationCache(5*time.Minute, clk, zap.NewNop())

	c.Put("LK-1", "D1", validationResult("LK-1", "D1"))
	clk.Advance(2 * time.Minute)
	c.Put("LK-2", "D2", validationResult("LK-2", "D2"))

	clk.Advance(3 * time.Minute)
	assert.Equal(t, 1, c.SweepExpired())
	assert.Equal(t, 1, c.Len())

	// The surviving entry is still fresh and still served.
	_, ok := c.Get("LK-2", "D2")
	assert.True(t, ok)
}
