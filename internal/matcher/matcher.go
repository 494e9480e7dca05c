// Package matcher resolves an inbound installation to at most one license
// record. Matching is tiered: each tier trades specificity for tolerance of
// the URL drift installers introduce, and the first tier with a unique hit
// wins.
package matcher

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/db"
)

// ErrNoMatch is a terminal outcome, not a retryable error. Callers surface it
// as a generic "invalid license" denial.
var ErrNoMatch = errors.New("no matching license")

// Path selects which fallback tiers apply. The install callback can fall back
// to district-name matching; the validate path can fall back to a
// license-key-only scan.
type Path int

const (
	PathValidate Path = iota
	PathInstallCallback
)

type Input struct {
	LicenseKey   string
	ServerURL    string
	DistrictUID  string
	DistrictName string
	Path         Path
}

type Store interface {
	GetLicenseExact(licenseKey, serverURL, districtUID string) (*db.LicenseWithServer, error)
	GetBindingsByDistrict(districtUID, licenseKey string) ([]*db.LicenseWithServer, error)
	GetBindingsByDistrictName(districtName string) ([]*db.LicenseWithServer, error)
	GetBindingsByLicenseKey(licenseKey string) ([]*db.LicenseWithServer, error)
}

// Metrics is the slice of the collector the matcher reports to. Nil disables
// reporting.
type Metrics interface {
	RecordMatchTier(tier string)
}

type Matcher struct {
	store   Store
	logger  *zap.Logger
	metrics Metrics
}

func New(store Store, logger *zap.Logger, metrics Metrics) *Matcher {
	return &Matcher{store: store, logger: logger, metrics: metrics}
}

// adminSuffixes are the admin-path suffixes installers commonly append to the
// URL they report, relative to the registered site root.
var adminSuffixes = []string{"/wp-admin", "/admin"}

// NormalizeServerURL strips trailing slashes and a known admin-path suffix so
// that the URL an installation reports compares equal to the URL its operator
// registered.
func NormalizeServerURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	lower := strings.ToLower(u)
	for _, suffix := range adminSuffixes {
		if strings.HasSuffix(lower, suffix) {
			u = u[:len(u)-len(suffix)]
			break
		}
	}
	u = strings.TrimRight(u, "/")
	return strings.ToLower(u)
}

type tier struct {
	name string
	run  func(Input) (*db.LicenseWithServer, error)
}

// Match runs the tiers in precedence order and returns the first unique hit.
func (m *Matcher) Match(in Input) (*db.LicenseWithServer, error) {
	tiers := []tier{
		{"exact", m.exact},
		{"district_fuzzy", m.districtFuzzy},
		{"district_name_fuzzy", m.districtNameFuzzy},
		{"license_key_fuzzy", m.licenseKeyFuzzy},
	}

	for _, t := range tiers {
		hit, err := t.run(in)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			if m.metrics != nil {
				m.metrics.RecordMatchTier(t.name)
			}
			m.logger.Debug("license matched",
				zap.String("tier", t.name),
				zap.String("district_uid", hit.DistrictUID),
			)
			return hit, nil
		}
	}

	return nil, ErrNoMatch
}

// exact requires every supplied field to match stored values verbatim,
// including the raw, non-normalized server URL.
func (m *Matcher) exact(in Input) (*db.LicenseWithServer, error) {
	if in.LicenseKey == "" || in.DistrictUID == "" {
		return nil, nil
	}

	row, err := m.store.GetLicenseExact(in.LicenseKey, in.ServerURL, in.DistrictUID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return row, err
}

func (m *Matcher) districtFuzzy(in Input) (*db.LicenseWithServer, error) {
	if in.DistrictUID == "" {
		return nil, nil
	}

	candidates, err := m.store.GetBindingsByDistrict(in.DistrictUID, in.LicenseKey)
	if err != nil {
		return nil, err
	}
	return firstNormalizedMatch(candidates, in.ServerURL), nil
}

// districtNameFuzzy covers the install callback, where no district_uid join
// is available yet.
func (m *Matcher) districtNameFuzzy(in Input) (*db.LicenseWithServer, error) {
	if in.Path != PathInstallCallback || in.DistrictName == "" {
		return nil, nil
	}

	candidates, err := m.store.GetBindingsByDistrictName(in.DistrictName)
	if err != nil {
		return nil, err
	}
	return firstNormalizedMatch(candidates, in.ServerURL), nil
}

// licenseKeyFuzzy drops the district constraint entirely and scans every
// binding under the key. Validate path only.
func (m *Matcher) licenseKeyFuzzy(in Input) (*db.LicenseWithServer, error) {
	if in.Path != PathValidate || in.LicenseKey == "" {
		return nil, nil
	}

	candidates, err := m.store.GetBindingsByLicenseKey(in.LicenseKey)
	if err != nil {
		return nil, err
	}
	return firstNormalizedMatch(candidates, in.ServerURL), nil
}

// firstNormalizedMatch is the pure comparison shared by every fuzzy tier.
func firstNormalizedMatch(candidates []*db.LicenseWithServer, serverURL string) *db.LicenseWithServer {
	want := NormalizeServerURL(serverURL)
	for _, c := range candidates {
		if NormalizeServerURL(c.ServerURL) == want {
			return c
		}
	}
	return nil
}
