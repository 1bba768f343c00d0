package model

import (
	"time"

	"delivery-tracking-backend/internal/geo"
)

// GeofenceKind classifies what a geofence guards.
type GeofenceKind string

const (
	GeofencePickup     GeofenceKind = "pickup"
	GeofenceDelivery   GeofenceKind = "delivery"
	GeofenceRestricted GeofenceKind = "restricted"
	GeofenceSafeZone   GeofenceKind = "safe_zone"
)

// GeometryType tags the geometry union of a geofence.
type GeometryType string

const (
	GeometryCircle  GeometryType = "circle"
	GeometryPolygon GeometryType = "polygon"
)

// Geofence is a named geographic region with activation rules and a
// notification policy. Geometry is either a circle (center + radius) or a
// closed polygon ring of at least four vertices.
type Geofence struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	TripID       string       `gorm:"size:64;index" json:"trip_id,omitempty"`
	Kind         GeofenceKind `gorm:"size:16;not null" json:"kind"`
	GeometryType GeometryType `gorm:"size:16;not null" json:"geometry_type"`

	// Circle geometry.
	CenterLat float64 `json:"center_lat,omitempty"`
	CenterLng float64 `json:"center_lng,omitempty"`
	RadiusM   float64 `json:"radius_m,omitempty"`

	// Polygon geometry: ordered closed ring (first vertex repeated last).
	Ring []geo.Point `gorm:"serializer:json" json:"ring,omitempty"`

	NotifyOnEntry    bool `gorm:"not null" json:"notify_on_entry"`
	NotifyOnExit     bool `gorm:"not null" json:"notify_on_exit"`
	DwellEnabled     bool `gorm:"not null" json:"dwell_enabled"`
	DwellDurationSec int  `json:"dwell_duration_sec,omitempty"`

	// Activation window: naive local datetimes ("2006-01-02 15:04:05")
	// interpreted in Timezone when evaluating.
	ActiveFrom  *string `gorm:"size:32" json:"active_from,omitempty"`
	ActiveUntil *string `gorm:"size:32" json:"active_until,omitempty"`
	Timezone    string  `gorm:"size:64" json:"timezone,omitempty"`

	Active    bool      `gorm:"not null;index" json:"active"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Center returns the circle center as a geo.Point.
func (g *Geofence) Center() geo.Point {
	return geo.Point{Lat: g.CenterLat, Lng: g.CenterLng}
}

// EventKind enumerates detected geofence transitions.
type EventKind string

const (
	EventEnter EventKind = "enter"
	EventExit  EventKind = "exit"
	EventDwell EventKind = "dwell"
)

// GeofenceEvent is one detected transition, append-only.
type GeofenceEvent struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	GeofenceID   string    `gorm:"size:36;not null;index" json:"geofence_id"`
	UserID       string    `gorm:"size:64;not null" json:"user_id"`
	TripID       string    `gorm:"size:64;not null;index" json:"trip_id"`
	Kind         EventKind `gorm:"size:8;not null" json:"kind"`
	Latitude     float64   `gorm:"not null" json:"latitude"`
	Longitude    float64   `gorm:"not null" json:"longitude"`
	DwellSeconds *int      `json:"dwell_seconds,omitempty"`
	TriggeredAt  time.Time `gorm:"not null" json:"triggered_at"`
}

// ContainmentState remembers whether a user was last observed inside a
// geofence, and since when. DwellNotified marks that the single dwell event
// for the current continuous inside-period has already been emitted; it is
// reset on every containment flip.
type ContainmentState struct {
	UserID         string    `gorm:"primaryKey;size:64" json:"user_id"`
	GeofenceID     string    `gorm:"primaryKey;size:36" json:"geofence_id"`
	IsInside       bool      `gorm:"not null" json:"is_inside"`
	SinceTimestamp time.Time `gorm:"not null" json:"since_timestamp"`
	DwellNotified  bool      `gorm:"not null" json:"dwell_notified"`
	UpdatedAt      time.Time `json:"-"`
}
