package handlers

import (
	"time"

	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/audit"
	"github.com/edulock/license-gateway/internal/cache"
	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/matcher"
	"github.com/edulock/license-gateway/internal/metrics"
	"github.com/edulock/license-gateway/internal/token"
)

// ViolationStore is the slice of the license store the security endpoints
// need.
type ViolationStore interface {
	CountRecentViolations(districtName string, window time.Duration, now time.Time) (int, error)
	Ping() error
}

type Handler struct {
	store   ViolationStore
	matcher *matcher.Matcher
	vcache  *cache.ValidationCache
	tokens  *token.Service
	modules *cache.ModuleCache
	sink    *audit.Sink
	metrics *metrics.Collector
	clock   clock.Clock
	logger  *zap.Logger

	violationThreshold int
	violationWindow    time.Duration
}

func NewHandler(
	store ViolationStore,
	m *matcher.Matcher,
	vcache *cache.ValidationCache,
	tokens *token.Service,
	modules *cache.ModuleCache,
	sink *audit.Sink,
	collector *metrics.Collector,
	clk clock.Clock,
	logger *zap.Logger,
	violationThreshold int,
	violationWindow time.Duration,
) *Handler {
	return &Handler{
		store:              store,
		matcher:            m,
		vcache:             vcache,
		tokens:             tokens,
		modules:            modules,
		sink:               sink,
		metrics:            collector,
		clock:              clk,
		logger:             logger,
		violationThreshold: violationThreshold,
		violationWindow:    violationWindow,
	}
}
