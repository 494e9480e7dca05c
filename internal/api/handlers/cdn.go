package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/cache"
	"github.com/edulock/license-gateway/internal/core"
	"github.com/edulock/license-gateway/internal/matcher"
	"github.com/edulock/license-gateway/internal/token"
)

type ValidateCDNRequest struct {
	LicenseKey  string `json:"license_key" binding:"required"`
	ServerURL   string `json:"server_url" binding:"required"`
	DistrictUID string `json:"district_uniqueid" binding:"required"`
	PluginType  string `json:"plugin_type" binding:"required"`
}

type ValidateCDNResponse struct {
	Valid            bool          `json:"valid"`
	CDNToken         string        `json:"cdn_token"`
	PlanTier         core.PlanTier `json:"plan_tier"`
	DistrictName     string        `json:"district_name"`
	ExpiryDate       time.Time     `json:"expiry_date"`
	UsedImageUploads int           `json:"used_image_uploads"`
	MaxImageUploads  int           `json:"max_image_uploads"`
	UsedAudioUploads int           `json:"used_audio_uploads"`
	MaxAudioUploads  int           `json:"max_audio_uploads"`
	UsedVideoUploads int           `json:"used_video_uploads"`
	MaxVideoUploads  int           `json:"max_video_uploads"`
}

// ValidateCDN matches the installation against the license store and issues a
// CDN token. Denials never say why the match failed; expired and inactive
// licenses get distinct messages because legitimate installations act on them.
func (h *Handler) ValidateCDN(c *gin.Context) {
	var req ValidateCDNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
		return
	}

	record, hit := h.vcache.Get(req.LicenseKey, req.DistrictUID)
	if hit {
		h.metrics.RecordCacheHit("validation")
	} else {
		h.metrics.RecordCacheMiss("validation")

		var err error
		record, err = h.matcher.Match(matcher.Input{
			LicenseKey:  req.LicenseKey,
			ServerURL:   req.ServerURL,
			DistrictUID: req.DistrictUID,
			Path:        matcher.PathValidate,
		})
		if errors.Is(err, matcher.ErrNoMatch) {
			h.metrics.RecordValidation("no_match")
			c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "Invalid license"})
			return
		}
		if err != nil {
			h.metrics.RecordValidation("store_error")
			h.logger.Error("license lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Internal error"})
			return
		}

		now := h.clock.Now()
		if !record.IsActive {
			h.metrics.RecordValidation("inactive")
			c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "License inactive"})
			return
		}
		if record.Expired(now) {
			h.metrics.RecordValidation("expired")
			c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "License expired"})
			return
		}
	}

	signed, _, err := h.tokens.Issue(record.DistrictUID, req.PluginType, record.LicenseKey)
	if err != nil {
		h.metrics.RecordValidation("sign_error")
		h.logger.Error("token signing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Internal error"})
		return
	}

	if !hit {
		h.vcache.Put(req.LicenseKey, req.DistrictUID, record)
	}

	h.sink.Record(record.LicenseKey, record.DistrictName, core.EventCDNAccess,
		map[string]interface{}{
			"server_url":  req.ServerURL,
			"plugin_type": req.PluginType,
		},
		"", c.ClientIP(), c.Request.UserAgent(),
	)

	h.metrics.RecordValidation("valid")
	h.metrics.RecordTokenIssued(h.tokens.ActiveCount())

	limits := record.PlanTier.Limits()
	c.JSON(http.StatusOK, ValidateCDNResponse{
		Valid:            true,
		CDNToken:         signed,
		PlanTier:         record.PlanTier,
		DistrictName:     record.DistrictName,
		ExpiryDate:       record.ExpiryDate,
		UsedImageUploads: record.UsedImageUploads,
		MaxImageUploads:  limits.MaxImageUploads,
		UsedAudioUploads: record.UsedAudioUploads,
		MaxAudioUploads:  limits.MaxAudioUploads,
		UsedVideoUploads: record.UsedVideoUploads,
		MaxVideoUploads:  limits.MaxVideoUploads,
	})
}

// ServeModule delivers a cached module to a validated token holder. Unknown
// and disallowed names are both 404 so probes can't map the allow-list.
func (h *Handler) ServeModule(c *gin.Context) {
	name := c.Param("module")

	claims, _ := c.MustGet("claims").(*token.Claims)

	if err := h.modules.Serve(c.Writer, name); err != nil {
		if errors.Is(err, cache.ErrModuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		h.logger.Error("module serve failed",
			zap.String("module", name),
			zap.String("district_uid", claims.DistrictUID),
			zap.Error(err),
		)
		return
	}

	h.metrics.RecordModuleServed(name)
}

// HeartbeatRequest carries the token in the body rather than a header; the
// plugin's scheduled re-validation call predates the bearer convention.
type HeartbeatRequest struct {
	CDNToken    string `json:"cdn_token" binding:"required"`
	ServerURL   string `json:"server_url" binding:"required"`
	DistrictUID string `json:"district_uniqueid"`
}

// Heartbeat re-validates a live installation. A failed license re-check is
// the real revocation path: the token is explicitly dropped here, not merely
// left to expire.
func (h *Handler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
		return
	}

	claims, err := h.tokens.Validate(req.CDNToken)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "Invalid token"})
		return
	}

	districtUID := req.DistrictUID
	if districtUID == "" {
		districtUID = claims.DistrictUID
	}

	record, err := h.matcher.Match(matcher.Input{
		LicenseKey:  claims.LicenseKey,
		ServerURL:   req.ServerURL,
		DistrictUID: districtUID,
		Path:        matcher.PathValidate,
	})
	if err != nil && !errors.Is(err, matcher.ErrNoMatch) {
		h.logger.Error("heartbeat license lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Internal error"})
		return
	}

	if record == nil || !record.Usable(h.clock.Now()) {
		h.tokens.Revoke(req.CDNToken)
		h.metrics.RecordTokenRevoked()
		c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "License no longer valid"})
		return
	}

	h.sink.Record(record.LicenseKey, record.DistrictName, core.EventHeartbeat,
		map[string]interface{}{"server_url": req.ServerURL},
		"", c.ClientIP(), c.Request.UserAgent(),
	)

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		// Reserved for pushing refreshed license data to the client;
		// nothing sets it yet.
		"license_updated": false,
	})
}
