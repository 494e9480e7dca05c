// Package audit records security events on a best-effort basis. A failed
// audit write must never abort the request that triggered it: an audit-log
// gap is preferred over a broken user-facing transaction.
package audit

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/core"
	"github.com/edulock/license-gateway/internal/db"
)

type Store interface {
	InsertSecurityEvent(ev *core.SecurityEvent) error
}

// Metrics is the slice of the collector the sink reports to. Nil disables
// reporting.
type Metrics interface {
	RecordAuditFallback()
	RecordAuditDropped()
}

type Sink struct {
	store   Store
	clock   clock.Clock
	logger  *zap.Logger
	metrics Metrics
}

func NewSink(store Store, clk clock.Clock, logger *zap.Logger, metrics Metrics) *Sink {
	return &Sink{store: store, clock: clk, logger: logger, metrics: metrics}
}

// Record writes the event, retrying once with a NULL license key if the
// referenced license no longer exists (deleted licenses and load-test probes
// both land here). Never returns an error to the caller.
//
// Two explicit steps, not nested recovery: full write, then the one relaxed
// retry, then drop.
func (s *Sink) Record(licenseKey, districtName string, eventType core.EventType, eventData map[string]interface{}, userID, ip, userAgent string) {
	ev := &core.SecurityEvent{
		ID:           uuid.New().String(),
		DistrictName: districtName,
		EventType:    eventType,
		EventData:    eventData,
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    s.clock.Now(),
	}
	if licenseKey != "" {
		ev.LicenseKey = &licenseKey
	}

	err := s.store.InsertSecurityEvent(ev)
	if err == nil {
		return
	}

	if db.IsForeignKeyViolation(err) && ev.LicenseKey != nil {
		ev.LicenseKey = nil
		if err = s.store.InsertSecurityEvent(ev); err == nil {
			if s.metrics != nil {
				s.metrics.RecordAuditFallback()
			}
			s.logger.Warn("security event recorded without license key",
				zap.String("license_key", licenseKey),
				zap.String("event_type", string(eventType)),
			)
			return
		}
	}

	if s.metrics != nil {
		s.metrics.RecordAuditDropped()
	}
	s.logger.Error("security event dropped",
		zap.String("event_type", string(eventType)),
		zap.String("district_name", districtName),
		zap.Error(err),
	)
}
