package model

import "time"

// SessionStatus enumerates the tracking session lifecycle states.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
)

// IsTerminal reports whether the status ends the session's lifecycle.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStopped || s == SessionCompleted
}

// TrackingSession is the lifecycle record for location tracking of one
// delivery trip. At most one active session exists per trip.
type TrackingSession struct {
	TripID           string        `gorm:"primaryKey;size:64" json:"trip_id"`
	UserID           string        `gorm:"size:64;not null;index" json:"user_id"`
	Status           SessionStatus `gorm:"size:16;not null" json:"status"`
	StartedAt        time.Time     `gorm:"not null" json:"started_at"`
	StoppedAt        *time.Time    `json:"stopped_at,omitempty"`
	StopReason       string        `gorm:"size:128" json:"stop_reason,omitempty"`
	TotalUpdates     int64         `gorm:"not null" json:"total_updates"`
	TotalDistanceKm  float64       `gorm:"not null" json:"total_distance_km"`
	TotalDurationMin float64       `gorm:"not null" json:"total_duration_min"`
	IntervalSec      int           `gorm:"not null" json:"interval_sec"`
	AccuracyTier     string        `gorm:"size:16" json:"accuracy_tier"`
	TrackingLevel    string        `gorm:"size:16;not null" json:"tracking_level"`
	CreatedAt        time.Time     `json:"-"`
	UpdatedAt        time.Time     `json:"-"`
}
