package core

import (
	"time"
)

type EventType string

const (
	EventCDNAccess         EventType = "cdn_access"
	EventHeartbeat         EventType = "heartbeat"
	EventSecurityViolation EventType = "security_violation"
	EventWebcamUsage       EventType = "webcam_usage"
)

// SecurityEvent is an append-only audit row. LicenseKey is a pointer because
// the store falls back to a NULL license when the referenced key is gone.
type SecurityEvent struct {
	ID           string                 `json:"id" db:"id"`
	LicenseKey   *string                `json:"license_key" db:"license_key"`
	DistrictName string                 `json:"district_name" db:"district_name"`
	EventType    EventType              `json:"event_type" db:"event_type"`
	EventData    map[string]interface{} `json:"event_data" db:"event_data"`
	UserID       string                 `json:"user_id" db:"user_id"`
	IPAddress    string                 `json:"ip_address" db:"ip_address"`
	UserAgent    string                 `json:"user_agent" db:"user_agent"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
