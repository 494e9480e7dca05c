package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/edulock/license-gateway/internal/core"
)

var ErrNotFound = errors.New("license not found")

// LicenseWithServer is a licenses/license_servers join row. The matcher
// compares the binding URL, the gateway responds with the license fields.
type LicenseWithServer struct {
	core.License
	ServerURL    string          `db:"server_url"`
	ServerType   core.ServerType `db:"server_type"`
	ServerActive bool            `db:"server_is_active"`
}

const licenseServerColumns = `
    l.license_key, l.district_uid, l.district_name, l.plan_tier,
    l.used_image_uploads, l.used_audio_uploads, l.used_video_uploads,
    l.is_active, l.expiry_date, l.created_at, l.updated_at,
    s.server_url, s.server_type, s.is_active AS server_is_active`

// GetLicenseExact matches every supplied field verbatim, including the raw
// server URL.
func (r *Repository) GetLicenseExact(licenseKey, serverURL, districtUID string) (*LicenseWithServer, error) {
	var row LicenseWithServer
	query := `
        SELECT` + licenseServerColumns + `
        FROM licenses l
        JOIN license_servers s ON s.license_key = l.license_key
        WHERE l.license_key = $1
        AND s.server_url = $2
        AND l.district_uid = $3
        AND s.is_active = true
        LIMIT 1`

	err := r.db.Get(&row, query, licenseKey, serverURL, districtUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetBindingsByDistrict returns the active bindings for a district, narrowed
// by license key when one was supplied.
func (r *Repository) GetBindingsByDistrict(districtUID, licenseKey string) ([]*LicenseWithServer, error) {
	rows := []*LicenseWithServer{}
	query := `
        SELECT` + licenseServerColumns + `
        FROM licenses l
        JOIN license_servers s ON s.license_key = l.license_key
        WHERE l.district_uid = $1
        AND s.is_active = true
        AND ($2 = '' OR l.license_key = $2)
        ORDER BY s.server_type, s.created_at`

	err := r.db.Select(&rows, query, districtUID, licenseKey)
	return rows, err
}

func (r *Repository) GetBindingsByDistrictName(districtName string) ([]*LicenseWithServer, error) {
	rows := []*LicenseWithServer{}
	query := `
        SELECT` + licenseServerColumns + `
        FROM licenses l
        JOIN license_servers s ON s.license_key = l.license_key
        WHERE l.district_name = $1
        AND s.is_active = true
        ORDER BY s.server_type, s.created_at`

	err := r.db.Select(&rows, query, districtName)
	return rows, err
}

func (r *Repository) GetBindingsByLicenseKey(licenseKey string) ([]*LicenseWithServer, error) {
	rows := []*LicenseWithServer{}
	query := `
        SELECT` + licenseServerColumns + `
        FROM licenses l
        JOIN license_servers s ON s.license_key = l.license_key
        WHERE l.license_key = $1
        AND s.is_active = true
        ORDER BY s.server_type, s.created_at`

	err := r.db.Select(&rows, query, licenseKey)
	return rows, err
}

// CountRecentViolations counts security_violation rows for a district within
// the trailing window.
func (r *Repository) CountRecentViolations(districtName string, window time.Duration, now time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM security_events
        WHERE district_name = $1
        AND event_type = $2
        AND created_at > $3`

	err := r.db.Get(&count, query, districtName, core.EventSecurityViolation, now.Add(-window))
	return count, err
}

func (r *Repository) InsertSecurityEvent(ev *core.SecurityEvent) error {
	dataJSON, err := json.Marshal(ev.EventData)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO security_events (
            id, license_key, district_name, event_type, event_data,
            user_id, ip_address, user_agent, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err = r.db.Exec(query,
		ev.ID, ev.LicenseKey, ev.DistrictName, ev.EventType, dataJSON,
		ev.UserID, ev.IPAddress, ev.UserAgent, ev.CreatedAt,
	)
	return err
}

// IsForeignKeyViolation reports whether err is a postgres FK violation
// (SQLSTATE 23503), the only failure class the audit sink retries.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
