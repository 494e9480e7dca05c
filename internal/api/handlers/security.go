package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/core"
)

type SecurityReportRequest struct {
	LicenseKey   string                 `json:"license_key"`
	DistrictName string                 `json:"district_name" binding:"required"`
	EventType    string                 `json:"event_type"`
	EventData    map[string]interface{} `json:"event_data"`
	UserID       string                 `json:"user_id"`
}

// SecurityReport accepts a violation report from an installation. Recording
// is best-effort; the endpoint acknowledges regardless so a flaky audit store
// never breaks the reporting plugin.
func (h *Handler) SecurityReport(c *gin.Context) {
	var req SecurityReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventType := core.EventType(req.EventType)
	if eventType == "" {
		eventType = core.EventSecurityViolation
	}

	h.sink.Record(req.LicenseKey, req.DistrictName, eventType, req.EventData,
		req.UserID, c.ClientIP(), c.Request.UserAgent())

	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

type WebcamAccessRequest struct {
	DistrictUID  string `json:"district_uniqueid"`
	DistrictName string `json:"district_name" binding:"required"`
}

// WebcamAccessCheck is advisory: more than the configured number of
// violations inside the trailing window denies webcam access for the
// district.
func (h *Handler) WebcamAccessCheck(c *gin.Context) {
	var req WebcamAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.store.CountRecentViolations(req.DistrictName, h.violationWindow, h.clock.Now())
	if err != nil {
		h.logger.Error("violation count failed",
			zap.String("district_name", req.DistrictName),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed":         count <= h.violationThreshold,
		"violation_count": count,
	})
}

type WebcamUsageRequest struct {
	LicenseKey   string                 `json:"license_key"`
	DistrictName string                 `json:"district_name" binding:"required"`
	UserID       string                 `json:"user_id"`
	EventData    map[string]interface{} `json:"event_data"`
}

func (h *Handler) LogWebcamUsage(c *gin.Context) {
	var req WebcamUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.sink.Record(req.LicenseKey, req.DistrictName, core.EventWebcamUsage, req.EventData,
		req.UserID, c.ClientIP(), c.Request.UserAgent())

	c.JSON(http.StatusOK, gin.H{"logged": true})
}
