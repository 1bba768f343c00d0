// Package engine is the orchestrating facade over the tracking core. It
// exposes the public operations and a drainable event stream the transport
// layer forwards to watchers.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/cache"
	"delivery-tracking-backend/internal/ingest"
	"delivery-tracking-backend/internal/model"
	"delivery-tracking-backend/internal/privacy"
	"delivery-tracking-backend/internal/session"
	"delivery-tracking-backend/internal/store"
)

// EventType tags engine-emitted events.
type EventType string

const (
	EventTrackingStarted EventType = "tracking_started"
	EventLocationUpdated EventType = "location_updated"
	EventTrackingStopped EventType = "tracking_stopped"
	EventGeofence        EventType = "geofence_event"
)

// Event is one engine emission, consumed by the transport layer.
type Event struct {
	Type    EventType `json:"type"`
	TripID  string    `json:"trip_id"`
	Payload any       `json:"payload"`
}

// Engine wires the session manager, ingestion pipeline and caches behind the
// public operations.
type Engine struct {
	sessions  *session.Manager
	pipeline  *ingest.Pipeline
	locations *cache.CurrentLocationCache
	store     store.Store
	filter    *privacy.Filter
	events    chan Event
}

// New creates an Engine.
func New(s store.Store, sessions *session.Manager, pipeline *ingest.Pipeline, locations *cache.CurrentLocationCache, filter *privacy.Filter) *Engine {
	return &Engine{
		sessions:  sessions,
		pipeline:  pipeline,
		locations: locations,
		store:     s,
		filter:    filter,
		events:    make(chan Event, 256),
	}
}

// Events returns the engine's event stream. The caller is expected to drain
// it; emissions never block and are dropped when the buffer is full.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		logrus.WithFields(logrus.Fields{
			"type":    event.Type,
			"trip_id": event.TripID,
		}).Warn("event buffer full, dropping engine event")
	}
}

// StartTracking starts (or resumes) the tracking session for a trip.
func (e *Engine) StartTracking(ctx context.Context, tripID, userID string, settings session.Settings, level privacy.Level) (*model.TrackingSession, error) {
	sess, err := e.sessions.Start(ctx, tripID, userID, settings, level)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventTrackingStarted, TripID: tripID, Payload: sess})
	return sess, nil
}

// StopTracking terminates the session and emits a summary. When completed is
// set the session lands in the completed state instead of stopped.
func (e *Engine) StopTracking(ctx context.Context, tripID, reason string, completed bool) (*model.TrackingSession, error) {
	terminate := e.sessions.Stop
	if completed {
		terminate = e.sessions.Complete
	}
	sess, err := terminate(ctx, tripID, reason)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventTrackingStopped, TripID: tripID, Payload: sess})
	return sess, nil
}

// PauseTracking suspends an active session.
func (e *Engine) PauseTracking(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	return e.sessions.Pause(ctx, tripID)
}

// ResumeTracking reactivates a paused session.
func (e *Engine) ResumeTracking(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	return e.sessions.Resume(ctx, tripID)
}

// IngestLocation runs one sample through the pipeline and emits the update
// plus any geofence events.
func (e *Engine) IngestLocation(ctx context.Context, tripID, userID string, raw ingest.RawSample) (*ingest.IngestResult, error) {
	result, err := e.pipeline.IngestOne(ctx, tripID, userID, raw)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventLocationUpdated, TripID: tripID, Payload: result})
	for _, ev := range result.Events {
		e.emit(Event{Type: EventGeofence, TripID: tripID, Payload: ev})
	}
	return result, nil
}

// IngestLocationBatch runs a batch through the pipeline. The batch size
// bound is enforced at the transport boundary, not here.
func (e *Engine) IngestLocationBatch(ctx context.Context, tripID, userID string, raws []ingest.RawSample) (*ingest.BatchResult, error) {
	result, err := e.pipeline.IngestBatch(ctx, tripID, userID, raws)
	if err != nil {
		return nil, err
	}
	if result.FilteredSample != nil {
		e.emit(Event{Type: EventLocationUpdated, TripID: tripID, Payload: result})
	}
	for _, ev := range result.Events {
		e.emit(Event{Type: EventGeofence, TripID: tripID, Payload: ev})
	}
	return result, nil
}

// GetCurrentLocation serves the low-latency read path: cache first, falling
// back to the last persisted sample run through the session's privacy level.
func (e *Engine) GetCurrentLocation(ctx context.Context, tripID, userID string) (*model.LocationSample, error) {
	if sample, found, err := e.locations.Current(ctx, tripID); err == nil && found {
		return sample, nil
	} else if err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Warn("current-location cache read failed, falling back to storage")
	}

	last, err := e.store.LastSample(ctx, tripID, userID)
	if err != nil || last == nil {
		return nil, err
	}

	sess, err := e.sessions.Get(ctx, tripID)
	level := privacy.LevelPrecise
	if err == nil {
		if l, perr := privacy.ParseLevel(sess.TrackingLevel); perr == nil {
			level = l
		}
	}
	filtered := e.filter.Apply(*last, level)

	// Repopulate the cache so the next read stays off the database.
	if cerr := e.locations.SetCurrent(ctx, &filtered); cerr != nil {
		logrus.WithField("trip_id", tripID).WithError(cerr).Warn("current-location cache repopulation failed")
	}
	return &filtered, nil
}

// GetHistory returns a trip's samples within [from, to], ordered by
// timestamp.
func (e *Engine) GetHistory(ctx context.Context, tripID string, from, to time.Time) ([]model.LocationSample, error) {
	return e.store.SamplesInRange(ctx, tripID, from, to)
}

// GetSession returns the trip's session.
func (e *Engine) GetSession(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	return e.sessions.Get(ctx, tripID)
}
