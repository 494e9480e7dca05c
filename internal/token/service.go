// Package token issues and tracks the signed CDN tokens that gate module
// delivery and heartbeats.
//
// Revocation here is weaker than it looks: removing a token from the active
// set does not invalidate its signature, and under the default readmit policy
// a cryptographically valid, unexpired token that is missing from the set is
// re-admitted on its next use. Revoke is best-effort and bypassable until the
// token expires unless ReadmitNever is configured.
package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
)

var ErrInvalid = errors.New("invalid token")

// ReadmitPolicy decides the fate of a valid, unexpired token that is absent
// from the active set.
type ReadmitPolicy string

const (
	// ReadmitValidSignature re-admits on signature validity alone. This is
	// the production default: it tolerates process restarts and keeps the
	// validate path off the store, at the cost of revocation being advisory.
	ReadmitValidSignature ReadmitPolicy = "signature"
	// ReadmitNever rejects any token whose ID is on the revocation list,
	// regardless of signature validity.
	ReadmitNever ReadmitPolicy = "never"
)

type Claims struct {
	DistrictUID string `json:"district_uid"`
	PluginType  string `json:"plugin_type"`
	LicenseKey  string `json:"license_key,omitempty"`
	jwt.RegisteredClaims
}

// Metrics is the slice of the collector the service reports to. Nil disables
// reporting.
type Metrics interface {
	RecordTokensSwept(n int)
}

type Service struct {
	secret  []byte
	ttl     time.Duration
	policy  ReadmitPolicy
	clock   clock.Clock
	logger  *zap.Logger
	metrics Metrics

	mu      sync.Mutex
	active  map[string]string    // jti -> signed token
	revoked map[string]time.Time // jti -> revocation time
}

func NewService(secret string, ttl time.Duration, policy ReadmitPolicy, clk clock.Clock, logger *zap.Logger, metrics Metrics) *Service {
	return &Service{
		secret:  []byte(secret),
		ttl:     ttl,
		policy:  policy,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
		active:  make(map[string]string),
		revoked: make(map[string]time.Time),
	}
}

// Issue signs a token for the installation and records it in the active set.
func (s *Service) Issue(districtUID, pluginType, licenseKey string) (string, *Claims, error) {
	now := s.clock.Now()
	claims := &Claims{
		DistrictUID: districtUID,
		PluginType:  pluginType,
		LicenseKey:  licenseKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	s.active[claims.ID] = signed
	s.mu.Unlock()

	return signed, claims, nil
}

// Validate checks signature and expiry, then consults the active set.
// Signature or expiry failure is always fatal. Absence from the active set is
// not: the token is re-admitted unless the policy is ReadmitNever and its ID
// was revoked in this process lifetime.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[claims.ID]; ok {
		return claims, nil
	}

	if s.policy == ReadmitNever {
		if _, wasRevoked := s.revoked[claims.ID]; wasRevoked {
			return nil, ErrInvalid
		}
	}

	// Valid signature, unexpired, not in the set: re-admit. Tokens issued
	// before a restart land here, as do revoked-but-unexpired replays under
	// the default policy.
	s.active[claims.ID] = tokenString
	return claims, nil
}

// Revoke drops a token from the active set. It does not touch the signature,
// so the token stays cryptographically valid until expiry; see the package
// comment for what that means under each readmit policy.
func (s *Service) Revoke(tokenString string) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return
	}
	if claims.ID == "" {
		return
	}

	s.mu.Lock()
	delete(s.active, claims.ID)
	s.revoked[claims.ID] = s.clock.Now()
	s.mu.Unlock()

	s.logger.Info("token revoked",
		zap.String("jti", claims.ID),
		zap.String("district_uid", claims.DistrictUID),
	)
}

// SweepExpired re-verifies every active token and drops the ones whose
// signature or expiry no longer hold. This bounds memory growth; it has no
// revocation role. Revocation entries older than the token TTL are pruned at
// the same time, since the tokens they name can no longer verify anyway.
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for jti, tok := range s.active {
		if _, err := s.parse(tok); err != nil {
			delete(s.active, jti)
			dropped++
		}
	}

	cutoff := s.clock.Now().Add(-s.ttl)
	for jti, at := range s.revoked {
		if at.Before(cutoff) {
			delete(s.revoked, jti)
		}
	}

	if s.metrics != nil && dropped > 0 {
		s.metrics.RecordTokensSwept(dropped)
	}

	return dropped
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				s.logger.Debug("swept expired tokens", zap.Int("dropped", n))
			}
		}
	}
}

func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
