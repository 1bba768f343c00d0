package model

import "time"

// PushSubscription holds a browser push subscription for someone watching a
// trip's geofence events.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	TripID    string    `gorm:"size:64;not null;index" json:"trip_id"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}
