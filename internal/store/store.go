package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"delivery-tracking-backend/internal/apperrors"
	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/model"
)

// Store defines the persistence operations the engine consumes.
type Store interface {
	// Sessions.
	CreateSession(ctx context.Context, session *model.TrackingSession) error
	GetSession(ctx context.Context, tripID string) (*model.TrackingSession, error)
	SaveSession(ctx context.Context, session *model.TrackingSession) error

	// Samples.
	AppendSample(ctx context.Context, sample *model.LocationSample) error
	AppendSamples(ctx context.Context, samples []model.LocationSample) error
	LastSample(ctx context.Context, tripID, userID string) (*model.LocationSample, error)
	SamplesInRange(ctx context.Context, tripID string, from, to time.Time) ([]model.LocationSample, error)

	// Geofences.
	CreateGeofence(ctx context.Context, fence *model.Geofence) error
	GetGeofencesForTrip(ctx context.Context, tripID string) ([]model.Geofence, error)
	DeactivateGeofence(ctx context.Context, id string) error

	// Containment state.
	GetContainmentState(ctx context.Context, userID, geofenceID string) (*model.ContainmentState, error)
	PutContainmentState(ctx context.Context, state *model.ContainmentState) error

	// Events.
	SaveEvent(ctx context.Context, event *model.GeofenceEvent) error
	EventsForTrip(ctx context.Context, tripID string) ([]model.GeofenceEvent, error)

	// Push subscriptions.
	SubscriptionsForTrip(ctx context.Context, tripID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	// DB exposes the underlying handle for the API layer's direct reads.
	DB() *gorm.DB
}

// opTimeout bounds every storage round trip.
const opTimeout = 5 * time.Second

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func (s *gormStore) CreateSession(ctx context.Context, session *model.TrackingSession) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session for trip %s: %w", session.TripID, err)
	}
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var session model.TrackingSession
	err := s.db.WithContext(ctx).First(&session, "trip_id = ?", tripID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session for trip %s: %w", tripID, err)
	}
	return &session, nil
}

func (s *gormStore) SaveSession(ctx context.Context, session *model.TrackingSession) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("save session for trip %s: %w", session.TripID, err)
	}
	return nil
}

func (s *gormStore) AppendSample(ctx context.Context, sample *model.LocationSample) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("%w: append sample for trip %s: %v", apperrors.ErrStorageUnavailable, sample.TripID, err)
	}
	return nil
}

func (s *gormStore) AppendSamples(ctx context.Context, samples []model.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).CreateInBatches(samples, 100).Error; err != nil {
		return fmt.Errorf("%w: append %d samples for trip %s: %v",
			apperrors.ErrStorageUnavailable, len(samples), samples[0].TripID, err)
	}
	return nil
}

func (s *gormStore) LastSample(ctx context.Context, tripID, userID string) (*model.LocationSample, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var sample model.LocationSample
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Order("timestamp DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sample for trip %s: %w", tripID, err)
	}
	return &sample, nil
}

func (s *gormStore) SamplesInRange(ctx context.Context, tripID string, from, to time.Time) ([]model.LocationSample, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var samples []model.LocationSample
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND timestamp >= ? AND timestamp <= ?", tripID, from, to).
		Order("timestamp ASC").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("samples in range for trip %s: %w", tripID, err)
	}
	return samples, nil
}

func (s *gormStore) CreateGeofence(ctx context.Context, fence *model.Geofence) error {
	if err := ValidateGeometry(fence); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(fence).Error; err != nil {
		return fmt.Errorf("create geofence %s: %w", fence.ID, err)
	}
	return nil
}

func (s *gormStore) GetGeofencesForTrip(ctx context.Context, tripID string) ([]model.Geofence, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var fences []model.Geofence
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND active = ?", tripID, true).
		Find(&fences).Error
	if err != nil {
		return nil, fmt.Errorf("geofences for trip %s: %w", tripID, err)
	}
	return fences, nil
}

func (s *gormStore) DeactivateGeofence(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(ctx).
		Model(&model.Geofence{}).
		Where("id = ?", id).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate geofence %s: %w", id, err)
	}
	return nil
}

func (s *gormStore) GetContainmentState(ctx context.Context, userID, geofenceID string) (*model.ContainmentState, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var state model.ContainmentState
	err := s.db.WithContext(ctx).
		First(&state, "user_id = ? AND geofence_id = ?", userID, geofenceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("containment state (%s,%s): %w", userID, geofenceID, err)
	}
	return &state, nil
}

func (s *gormStore) PutContainmentState(ctx context.Context, state *model.ContainmentState) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "geofence_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_inside", "since_timestamp", "dwell_notified", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		return fmt.Errorf("put containment state (%s,%s): %w", state.UserID, state.GeofenceID, err)
	}
	return nil
}

func (s *gormStore) SaveEvent(ctx context.Context, event *model.GeofenceEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("save geofence event %s: %w", event.ID, err)
	}
	return nil
}

func (s *gormStore) EventsForTrip(ctx context.Context, tripID string) ([]model.GeofenceEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var events []model.GeofenceEvent
	err := s.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("triggered_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("events for trip %s: %w", tripID, err)
	}
	return events, nil
}

func (s *gormStore) SubscriptionsForTrip(ctx context.Context, tripID string) ([]model.PushSubscription, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("subscriptions for trip %s: %w", tripID, err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(ctx).
		Delete(&model.PushSubscription{}, "endpoint = ?", endpoint).Error
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", endpoint, err)
	}
	return nil
}

// ValidateGeometry rejects malformed geofence geometry at creation time.
func ValidateGeometry(fence *model.Geofence) error {
	switch fence.GeometryType {
	case model.GeometryCircle:
		if fence.RadiusM <= 0 {
			return fmt.Errorf("%w: circle radius must be positive, got %v",
				apperrors.ErrGeofenceGeometry, fence.RadiusM)
		}
		if err := validatePoint(fence.Center()); err != nil {
			return err
		}
	case model.GeometryPolygon:
		if len(fence.Ring) < 4 {
			return fmt.Errorf("%w: polygon ring needs at least 4 vertices, got %d",
				apperrors.ErrGeofenceGeometry, len(fence.Ring))
		}
		if fence.Ring[0] != fence.Ring[len(fence.Ring)-1] {
			return fmt.Errorf("%w: polygon ring must be closed (first vertex repeated last)",
				apperrors.ErrGeofenceGeometry)
		}
		for _, v := range fence.Ring {
			if err := validatePoint(v); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown geometry type %q",
			apperrors.ErrGeofenceGeometry, fence.GeometryType)
	}
	return nil
}

func validatePoint(p geo.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: vertex (%v,%v) out of range", apperrors.ErrGeofenceGeometry, p.Lat, p.Lng)
	}
	return nil
}
