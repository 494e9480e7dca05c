package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulock/license-gateway/internal/core"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewRepository(sqlx.NewDb(mockDB, "sqlmock")), mock
}

var licenseColumns = []string{
	"license_key", "district_uid", "district_name", "plan_tier",
	"used_image_uploads", "used_audio_uploads", "used_video_uploads",
	"is_active", "expiry_date", "created_at", "updated_at",
}

var joinColumns = append(append([]string{}, licenseColumns...),
	"server_url", "server_type", "server_is_active")

func licenseRow(mock sqlmock.Sqlmock, cols []string) *sqlmock.Rows {
	return mock.NewRows(cols)
}

func TestGetLicenseExact(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := licenseRow(mock, joinColumns).AddRow(
		"LK-1", "D1", "District One", "standard",
		3, 0, 1,
		true, now.Add(time.Hour), now, now,
		"https://d1.school.org/admin/", "production", true,
	)

	mock.ExpectQuery("SELECT.+FROM licenses l.+JOIN license_servers s").
		WithArgs("LK-1", "https://d1.school.org/admin/", "D1").
		WillReturnRows(rows)

	got, err := repo.GetLicenseExact("LK-1", "https://d1.school.org/admin/", "D1")
	require.NoError(t, err)
	assert.Equal(t, "LK-1", got.LicenseKey)
	assert.Equal(t, core.PlanStandard, got.PlanTier)
	assert.Equal(t, "https://d1.school.org/admin/", got.ServerURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLicenseExactTranslatesNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT.+FROM licenses l.+JOIN license_servers s").
		WithArgs("LK-missing", "https://x.example.org", "D1").
		WillReturnRows(licenseRow(mock, joinColumns))

	_, err := repo.GetLicenseExact("LK-missing", "https://x.example.org", "D1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBindingsByDistrictPassesKeyFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := licenseRow(mock, joinColumns).
		AddRow("LK-1", "D1", "District One", "basic", 0, 0, 0, true, now, now, now,
			"https://d1.school.org", "production", true).
		AddRow("LK-1", "D1", "District One", "basic", 0, 0, 0, true, now, now, now,
			"https://staging.d1.school.org", "test", true)

	mock.ExpectQuery("SELECT.+FROM licenses l.+WHERE l.district_uid").
		WithArgs("D1", "LK-1").
		WillReturnRows(rows)

	got, err := repo.GetBindingsByDistrict("D1", "LK-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.ServerTypeTest, got[1].ServerType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecentViolations(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM security_events").
		WithArgs("District One", string(core.EventSecurityViolation), now.Add(-24*time.Hour)).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(6))

	count, err := repo.CountRecentViolations("District One", 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSecurityEventPassesThroughError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO security_events").
		WillReturnError(&pq.Error{Code: "23503"})

	key := "LK-gone"
	err := repo.InsertSecurityEvent(&core.SecurityEvent{
		ID:           "11111111-2222-3333-4444-555555555555",
		LicenseKey:   &key,
		DistrictName: "District One",
		EventType:    core.EventCDNAccess,
		CreatedAt:    time.Now(),
	})
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsForeignKeyViolation(nil))
	assert.False(t, IsForeignKeyViolation(assert.AnError))
}
