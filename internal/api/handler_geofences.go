package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/model"
)

type createGeofenceRequest struct {
	TripID           string      `json:"trip_id"`
	Kind             string      `json:"kind" binding:"required"`
	GeometryType     string      `json:"geometry_type" binding:"required"`
	CenterLat        float64     `json:"center_lat"`
	CenterLng        float64     `json:"center_lng"`
	RadiusM          float64     `json:"radius_m"`
	Ring             []geo.Point `json:"ring"`
	NotifyOnEntry    bool        `json:"notify_on_entry"`
	NotifyOnExit     bool        `json:"notify_on_exit"`
	DwellEnabled     bool        `json:"dwell_enabled"`
	DwellDurationSec int         `json:"dwell_duration_sec"`
	ActiveFrom       *string     `json:"active_from"`
	ActiveUntil      *string     `json:"active_until"`
	Timezone         string      `json:"timezone"`
}

// CreateGeofence handles POST /api/geofences. Malformed geometry is rejected
// here, at creation time.
func (h *Handler) CreateGeofence(c *gin.Context) {
	var req createGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fence := &model.Geofence{
		ID:               uuid.NewString(),
		TripID:           req.TripID,
		Kind:             model.GeofenceKind(req.Kind),
		GeometryType:     model.GeometryType(req.GeometryType),
		CenterLat:        req.CenterLat,
		CenterLng:        req.CenterLng,
		RadiusM:          req.RadiusM,
		Ring:             req.Ring,
		NotifyOnEntry:    req.NotifyOnEntry,
		NotifyOnExit:     req.NotifyOnExit,
		DwellEnabled:     req.DwellEnabled,
		DwellDurationSec: req.DwellDurationSec,
		ActiveFrom:       req.ActiveFrom,
		ActiveUntil:      req.ActiveUntil,
		Timezone:         req.Timezone,
		Active:           true,
	}

	if err := h.store.CreateGeofence(c.Request.Context(), fence); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fence)
}

// DeactivateGeofence handles DELETE /api/geofences/:id.
func (h *Handler) DeactivateGeofence(c *gin.Context) {
	if err := h.store.DeactivateGeofence(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListGeofences handles GET /api/trips/:trip_id/geofences.
func (h *Handler) ListGeofences(c *gin.Context) {
	fences, err := h.store.GetGeofencesForTrip(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, fences)
}

// ListEvents handles GET /api/trips/:trip_id/events.
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.store.EventsForTrip(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
