package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"delivery-tracking-backend/internal/apperrors"
	"delivery-tracking-backend/internal/ingest"
)

type ingestRequest struct {
	UserID string           `json:"user_id" binding:"required"`
	Sample ingest.RawSample `json:"sample" binding:"required"`
}

// IngestLocation handles POST /api/trips/:trip_id/locations.
func (h *Handler) IngestLocation(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.IngestLocation(c.Request.Context(), c.Param("trip_id"), req.UserID, req.Sample)
	if err != nil {
		// Echo the rejected input back for client-side correction.
		c.AbortWithStatusJSON(apperrors.StatusCode(err), gin.H{
			"error":  apperrors.Kind(err),
			"detail": err.Error(),
			"input":  req.Sample,
		})
		return
	}
	c.JSON(http.StatusCreated, result)
}

type ingestBatchRequest struct {
	UserID  string             `json:"user_id" binding:"required"`
	Samples []ingest.RawSample `json:"samples" binding:"required"`
}

// IngestLocationBatch handles POST /api/trips/:trip_id/locations/batch. The
// batch size bound lives here at the boundary.
func (h *Handler) IngestLocationBatch(c *gin.Context) {
	var req ingestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Samples) > h.maxBatch {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("batch size %d exceeds the maximum of %d", len(req.Samples), h.maxBatch),
		})
		return
	}

	result, err := h.engine.IngestLocationBatch(c.Request.Context(), c.Param("trip_id"), req.UserID, req.Samples)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCurrentLocation handles GET /api/trips/:trip_id/locations/current.
func (h *Handler) GetCurrentLocation(c *gin.Context) {
	userID := c.Query("user_id")
	sample, err := h.engine.GetCurrentLocation(c.Request.Context(), c.Param("trip_id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if sample == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no location recorded for this trip"})
		return
	}
	c.JSON(http.StatusOK, sample)
}

// GetHistory handles GET /api/trips/:trip_id/locations/history?from=..&to=..
// with RFC3339 bounds.
func (h *Handler) GetHistory(c *gin.Context) {
	from, err := parseTimeParam(c.Query("from"), time.Time{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp, use RFC3339"})
		return
	}
	to, err := parseTimeParam(c.Query("to"), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp, use RFC3339"})
		return
	}

	samples, err := h.engine.GetHistory(c.Request.Context(), c.Param("trip_id"), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, samples)
}

func parseTimeParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
