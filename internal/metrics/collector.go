package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	validationsTotal *prometheus.CounterVec
	matchTier        *prometheus.CounterVec

	tokensIssued  prometheus.Counter
	tokensRevoked prometheus.Counter
	tokensSwept   prometheus.Counter
	tokensActive  prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	modulesServed *prometheus.CounterVec

	auditFallbacks prometheus.Counter
	auditDropped   prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		validationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_validations_total",
			Help: "CDN validation requests by outcome",
		}, []string{"outcome"}),
		matchTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_match_tier_total",
			Help: "Successful license matches by tier",
		}, []string{"tier"}),
		tokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_tokens_issued_total",
			Help: "CDN tokens issued",
		}),
		tokensRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_tokens_revoked_total",
			Help: "CDN tokens revoked via the heartbeat failure path",
		}),
		tokensSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_tokens_swept_total",
			Help: "Expired tokens dropped by the background sweep",
		}),
		tokensActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_tokens_active",
			Help: "Tokens currently in the active set",
		}),
		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Cache hits by cache name",
		}, []string{"cache"}),
		cacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Cache misses by cache name",
		}, []string{"cache"}),
		modulesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_modules_served_total",
			Help: "Module payloads served by module name",
		}, []string{"module"}),
		auditFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_fallbacks_total",
			Help: "Security events written via the NULL-license fallback",
		}),
		auditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_dropped_total",
			Help: "Security events dropped after the fallback also failed",
		}),
	}
}

func (c *Collector) RecordValidation(outcome string) {
	c.validationsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordMatchTier(tier string) {
	c.matchTier.WithLabelValues(tier).Inc()
}

func (c *Collector) RecordTokenIssued(activeCount int) {
	c.tokensIssued.Inc()
	c.tokensActive.Set(float64(activeCount))
}

func (c *Collector) RecordTokenRevoked() {
	c.tokensRevoked.Inc()
}

func (c *Collector) RecordTokensSwept(n int) {
	c.tokensSwept.Add(float64(n))
}

func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

func (c *Collector) RecordModuleServed(module string) {
	c.modulesServed.WithLabelValues(module).Inc()
}

func (c *Collector) RecordAuditFallback() {
	c.auditFallbacks.Inc()
}

func (c *Collector) RecordAuditDropped() {
	c.auditDropped.Inc()
}
