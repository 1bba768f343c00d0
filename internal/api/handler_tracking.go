package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"delivery-tracking-backend/internal/privacy"
	"delivery-tracking-backend/internal/session"
)

type startTrackingRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	IntervalSec   int    `json:"interval_sec"`
	AccuracyTier  string `json:"accuracy_tier"`
	TrackingLevel string `json:"tracking_level"`
}

// StartTracking handles POST /api/trips/:trip_id/tracking/start.
func (h *Handler) StartTracking(c *gin.Context) {
	var req startTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level, err := privacy.ParseLevel(req.TrackingLevel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.engine.StartTracking(c.Request.Context(), c.Param("trip_id"), req.UserID, session.Settings{
		IntervalSec:  req.IntervalSec,
		AccuracyTier: req.AccuracyTier,
	}, level)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type stopTrackingRequest struct {
	Reason    string `json:"reason"`
	Completed bool   `json:"completed"`
}

// StopTracking handles POST /api/trips/:trip_id/tracking/stop.
func (h *Handler) StopTracking(c *gin.Context) {
	var req stopTrackingRequest
	// Body is optional on stop.
	_ = c.ShouldBindJSON(&req)

	sess, err := h.engine.StopTracking(c.Request.Context(), c.Param("trip_id"), req.Reason, req.Completed)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// PauseTracking handles POST /api/trips/:trip_id/tracking/pause.
func (h *Handler) PauseTracking(c *gin.Context) {
	sess, err := h.engine.PauseTracking(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ResumeTracking handles POST /api/trips/:trip_id/tracking/resume.
func (h *Handler) ResumeTracking(c *gin.Context) {
	sess, err := h.engine.ResumeTracking(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSession handles GET /api/trips/:trip_id/tracking.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.engine.GetSession(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
