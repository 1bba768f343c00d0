package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-tracking-backend/internal/model"
)

const (
	// DefaultLocationTTL is how long a current-location entry stays fresh.
	DefaultLocationTTL = 5 * time.Minute

	// DefaultSessionTTL is how long a session snapshot stays fresh.
	DefaultSessionTTL = time.Hour
)

// CurrentLocationCache is the typed wrapper over the Cache port for the two
// hot read paths: the most recent privacy-filtered sample per trip, and the
// session snapshot consulted on every ingested sample.
type CurrentLocationCache struct {
	cache       Cache
	locationTTL time.Duration
	sessionTTL  time.Duration
}

// NewCurrentLocationCache creates the wrapper. Zero TTLs fall back to the
// defaults.
func NewCurrentLocationCache(c Cache, locationTTL, sessionTTL time.Duration) *CurrentLocationCache {
	if locationTTL <= 0 {
		locationTTL = DefaultLocationTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &CurrentLocationCache{cache: c, locationTTL: locationTTL, sessionTTL: sessionTTL}
}

func locationKey(tripID string) string { return "loc:current:" + tripID }

func sessionKey(tripID string) string { return "session:snapshot:" + tripID }

// SetCurrent stores the latest filtered sample for a trip.
func (c *CurrentLocationCache) SetCurrent(ctx context.Context, sample *model.LocationSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal current location: %w", err)
	}
	return c.cache.Set(ctx, locationKey(sample.TripID), data, c.locationTTL)
}

// Current returns the cached latest sample for a trip, if any.
func (c *CurrentLocationCache) Current(ctx context.Context, tripID string) (*model.LocationSample, bool, error) {
	data, found, err := c.cache.Get(ctx, locationKey(tripID))
	if err != nil || !found {
		return nil, false, err
	}
	var sample model.LocationSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, false, fmt.Errorf("unmarshal current location: %w", err)
	}
	return &sample, true, nil
}

// SetSession stores a session snapshot.
func (c *CurrentLocationCache) SetSession(ctx context.Context, session *model.TrackingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	return c.cache.Set(ctx, sessionKey(session.TripID), data, c.sessionTTL)
}

// Session returns the cached session snapshot for a trip, if any.
func (c *CurrentLocationCache) Session(ctx context.Context, tripID string) (*model.TrackingSession, bool, error) {
	data, found, err := c.cache.Get(ctx, sessionKey(tripID))
	if err != nil || !found {
		return nil, false, err
	}
	var session model.TrackingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return &session, true, nil
}

// InvalidateSession drops the snapshot for a trip, forcing the next activity
// check back to storage.
func (c *CurrentLocationCache) InvalidateSession(ctx context.Context, tripID string) error {
	return c.cache.Delete(ctx, sessionKey(tripID))
}
