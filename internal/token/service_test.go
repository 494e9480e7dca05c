package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
)

func newTestService(t *testing.T, policy ReadmitPolicy) (*Service, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService("test-secret", 24*time.Hour, policy, clk, zap.NewNop(), nil)
	return svc, clk
}

func TestIssueThenValidate(t *testing.T) {
	svc, _ := newTestService(t, ReadmitValidSignature)

	signed, issued, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "D1", claims.DistrictUID)
	assert.Equal(t, "exam-lockdown", claims.PluginType)
	assert.Equal(t, "LK-1", claims.LicenseKey)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, 1, svc.ActiveCount())
}

func TestValidateFailsAfterExpiry(t *testing.T) {
	svc, clk := newTestService(t, ReadmitValidSignature)

	signed, _, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)

	clk.Advance(24*time.Hour + time.Minute)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalid)

	// Expiry is fatal even while the token still sits in the active set.
	assert.Equal(t, 1, svc.ActiveCount())
	assert.Equal(t, 1, svc.SweepExpired())
	assert.Equal(t, 0, svc.ActiveCount())
}

func TestValidateRejectsGarbageAndWrongKey(t *testing.T) {
	svc, _ := newTestService(t, ReadmitValidSignature)

	_, err := svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalid)

	other, _ := newTestService(t, ReadmitValidSignature)
	other.secret = []byte("different-secret")
	signed, _, err := other.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

// A revoked token with a valid signature is re-admitted under the default
// policy. This is intentional, documented behavior: the active set only
// protects against tokens revoked earlier in the same process lifetime, and
// only until their next use.
func TestRevokedTokenIsReadmittedUnderDefaultPolicy(t *testing.T) {
	svc, _ := newTestService(t, ReadmitValidSignature)

	signed, _, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)

	svc.Revoke(signed)
	assert.Equal(t, 0, svc.ActiveCount())

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "D1", claims.DistrictUID)
	assert.Equal(t, 1, svc.ActiveCount())
}

func TestRevokedTokenStaysRevokedUnderReadmitNever(t *testing.T) {
	svc, _ := newTestService(t, ReadmitNever)

	signed, _, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)

	svc.Revoke(signed)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

// Tokens issued before a restart lose their active-set membership but keep a
// valid signature; they are re-admitted, not rejected.
func TestUnknownValidTokenIsReadmitted(t *testing.T) {
	before, _ := newTestService(t, ReadmitValidSignature)
	signed, _, err := before.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)

	after, _ := newTestService(t, ReadmitValidSignature)
	claims, err := after.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "D1", claims.DistrictUID)
	assert.Equal(t, 1, after.ActiveCount())
}

type recordingMetrics struct {
	swept []int
}

func (r *recordingMetrics) RecordTokensSwept(n int) {
	r.swept = append(r.swept, n)
}

func TestSweepReportsDroppedCount(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &recordingMetrics{}
	svc := NewService("test-secret", 24*time.Hour, ReadmitValidSignature, clk, zap.NewNop(), rec)

	_, _, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)
	_, _, err = svc.Issue("D2", "exam-lockdown", "LK-2")
	require.NoError(t, err)

	// Nothing expired yet: the sweep drops nothing and reports nothing.
	svc.SweepExpired()
	assert.Empty(t, rec.swept)

	clk.Advance(24*time.Hour + time.Minute)
	svc.SweepExpired()
	assert.Equal(t, []int{2}, rec.swept)
}

func TestSweepPrunesRevocationList(t *testing.T) {
	svc, clk := newTestService(t, ReadmitNever)

	signed, _, err := svc.Issue("D1", "exam-lockdown", "LK-1")
	require.NoError(t, err)
	svc.Revoke(signed)
	require.Len(t, svc.revoked, 1)

	clk.Advance(25 * time.Hour)
	svc.SweepExpired()
	assert.Empty(t, svc.revoked)
}
