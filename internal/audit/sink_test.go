package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/core"
)

type recordingStore struct {
	inserts []*core.SecurityEvent
	errs    []error // popped per call; nil means success
}

func (s *recordingStore) InsertSecurityEvent(ev *core.SecurityEvent) error {
	// Copy so later mutation by the sink doesn't rewrite history.
	cp := *ev
	s.inserts = append(s.inserts, &cp)

	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func fkViolation() error {
	return &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint"}
}

func newTestSink(store *recordingStore) *Sink {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewSink(store, clk, zap.NewNop(), nil)
}

func TestRecordSuccess(t *testing.T) {
	store := &recordingStore{}
	sink := newTestSink(store)

	sink.Record("LK-1", "District One", core.EventCDNAccess,
		map[string]interface{}{"server_url": "https://d1.school.org"},
		"user-7", "203.0.113.9", "plugin/2.1")

	require.Len(t, store.inserts, 1)
	ev := store.inserts[0]
	require.NotNil(t, ev.LicenseKey)
	assert.Equal(t, "LK-1", *ev.LicenseKey)
	assert.Equal(t, "District One", ev.DistrictName)
	assert.Equal(t, core.EventCDNAccess, ev.EventType)
	assert.Equal(t, "203.0.113.9", ev.IPAddress)
	assert.NotEmpty(t, ev.ID)
}

// A license key that no longer exists must not break the caller: the sink
// retries once with a NULL key and the same remaining fields.
func TestRecordRetriesWithNullLicenseOnFKViolation(t *testing.T) {
	store := &recordingStore{errs: []error{fkViolation()}}
	sink := newTestSink(store)

	sink.Record("LK-deleted", "District One", core.EventHeartbeat, nil, "", "198.51.100.4", "plugin/2.1")

	require.Len(t, store.inserts, 2)
	require.NotNil(t, store.inserts[0].LicenseKey)
	assert.Equal(t, "LK-deleted", *store.inserts[0].LicenseKey)

	fallback := store.inserts[1]
	assert.Nil(t, fallback.LicenseKey)
	assert.Equal(t, "District One", fallback.DistrictName)
	assert.Equal(t, core.EventHeartbeat, fallback.EventType)
	assert.Equal(t, store.inserts[0].ID, fallback.ID)
}

func TestRecordSwallowsDoubleFailure(t *testing.T) {
	store := &recordingStore{errs: []error{fkViolation(), errors.New("connection reset")}}
	sink := newTestSink(store)

	assert.NotPanics(t, func() {
		sink.Record("LK-1", "District One", core.EventWebcamUsage, nil, "", "", "")
	})
	assert.Len(t, store.inserts, 2)
}

func TestRecordDoesNotRetryOtherErrors(t *testing.T) {
	store := &recordingStore{errs: []error{errors.New("store unavailable")}}
	sink := newTestSink(store)

	sink.Record("LK-1", "District One", core.EventCDNAccess, nil, "", "", "")

	// Only the FK-violation class earns the relaxed retry.
	assert.Len(t, store.inserts, 1)
}

func TestRecordWithoutLicenseKey(t *testing.T) {
	store := &recordingStore{}
	sink := newTestSink(store)

	sink.Record("", "District One", core.EventSecurityViolation, nil, "", "", "")

	require.Len(t, store.inserts, 1)
	assert.Nil(t, store.inserts[0].LicenseKey)
}
