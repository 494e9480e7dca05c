package core

import (
	"time"
)

type PlanTier string

const (
	PlanBasic      PlanTier = "basic"
	PlanStandard   PlanTier = "standard"
	PlanEnterprise PlanTier = "enterprise"
)

// UploadLimits holds the per-plan maxima for each upload category.
// Enterprise is unlimited, encoded as -1.
type UploadLimits struct {
	MaxImageUploads int `json:"max_image_uploads"`
	MaxAudioUploads int `json:"max_audio_uploads"`
	MaxVideoUploads int `json:"max_video_uploads"`
}

var planLimits = map[PlanTier]UploadLimits{
	PlanBasic:      {MaxImageUploads: 100, MaxAudioUploads: 25, MaxVideoUploads: 10},
	PlanStandard:   {MaxImageUploads: 1000, MaxAudioUploads: 250, MaxVideoUploads: 100},
	PlanEnterprise: {MaxImageUploads: -1, MaxAudioUploads: -1, MaxVideoUploads: -1},
}

func (p PlanTier) Limits() UploadLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanBasic]
}

type License struct {
	LicenseKey   string   `json:"license_key" db:"license_key"`
	DistrictUID  string   `json:"district_uid" db:"district_uid"`
	DistrictName string   `json:"district_name" db:"district_name"`
	PlanTier     PlanTier `json:"plan_tier" db:"plan_tier"`

	// Usage counters, mutated by billing/usage collaborators
	UsedImageUploads int `json:"used_image_uploads" db:"used_image_uploads"`
	UsedAudioUploads int `json:"used_audio_uploads" db:"used_audio_uploads"`
	UsedVideoUploads int `json:"used_video_uploads" db:"used_video_uploads"`

	IsActive   bool      `json:"is_active" db:"is_active"`
	ExpiryDate time.Time `json:"expiry_date" db:"expiry_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (l *License) Expired(now time.Time) bool {
	return !l.ExpiryDate.IsZero() && l.ExpiryDate.Before(now)
}

// Usable reports whether the license can back a new CDN token right now.
func (l *License) Usable(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}

type ServerType string

const (
	ServerTypeProduction ServerType = "production"
	ServerTypeTest       ServerType = "test"
)

// ServerBinding ties a license to one installation URL. A license can carry
// several bindings; at most one active production binding is enforced by the
// registration flow, not here.
type ServerBinding struct {
	ID         int64      `json:"id" db:"id"`
	LicenseKey string     `json:"license_key" db:"license_key"`
	ServerURL  string     `json:"server_url" db:"server_url"`
	ServerType ServerType `json:"server_type" db:"server_type"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
