package model

import (
	"time"

	"delivery-tracking-backend/internal/geo"
)

// LocationSample is one GPS fix reported for a trip. Immutable once
// persisted; ordering key is Timestamp, not insertion order.
type LocationSample struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	TripID      string    `gorm:"size:64;not null;index:idx_samples_trip_time,priority:1" json:"trip_id"`
	UserID      string    `gorm:"size:64;not null" json:"user_id"`
	Latitude    float64   `gorm:"not null" json:"latitude"`
	Longitude   float64   `gorm:"not null" json:"longitude"`
	AccuracyM   *float64  `json:"accuracy_m,omitempty"`
	AltitudeM   *float64  `json:"altitude_m,omitempty"`
	BearingDeg  *float64  `json:"bearing_deg,omitempty"`
	SpeedMps    *float64  `json:"speed_mps,omitempty"`
	BatteryPct  *float64  `json:"battery_pct,omitempty"`
	NetworkType string    `gorm:"size:32" json:"network_type,omitempty"`
	Timestamp   time.Time `gorm:"not null;index:idx_samples_trip_time,priority:2" json:"timestamp"`
	CreatedAt   time.Time `json:"-"`
}

// Coords returns the sample's position as a geo.Point.
func (s *LocationSample) Coords() geo.Point {
	return geo.Point{Lat: s.Latitude, Lng: s.Longitude}
}
