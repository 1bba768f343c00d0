// Package session owns the lifecycle state machine of tracking sessions,
// one per delivery trip.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/apperrors"
	"delivery-tracking-backend/internal/cache"
	"delivery-tracking-backend/internal/kv"
	"delivery-tracking-backend/internal/model"
	"delivery-tracking-backend/internal/privacy"
	"delivery-tracking-backend/internal/store"
)

// Settings are the per-session tracking parameters chosen at start.
type Settings struct {
	IntervalSec  int    `json:"interval_sec"`
	AccuracyTier string `json:"accuracy_tier"`
}

// Manager enforces the one-active-session-per-trip invariant and keeps the
// cumulative counters. All mutations of one trip's session are serialized
// through a per-trip lock.
type Manager struct {
	store store.Store
	snaps *cache.CurrentLocationCache
	locks *kv.KeyedMutex
	now   func() time.Time
}

// NewManager creates a session manager.
func NewManager(s store.Store, snaps *cache.CurrentLocationCache) *Manager {
	return &Manager{
		store: s,
		snaps: snaps,
		locks: kv.NewKeyedMutex(),
		now:   time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	m.now = now
}

// Start creates a new active session for the trip, or resumes a previously
// paused/stopped one without resetting its counters. Fails with
// ErrSessionAlreadyActive when an active session exists.
func (m *Manager) Start(ctx context.Context, tripID, userID string, settings Settings, level privacy.Level) (*model.TrackingSession, error) {
	unlock := m.locks.Lock(tripID)
	defer unlock()

	existing, err := m.store.GetSession(ctx, tripID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()

	if existing != nil {
		if existing.Status == model.SessionActive {
			return nil, fmt.Errorf("%w: trip %s", apperrors.ErrSessionAlreadyActive, tripID)
		}
		// Resume the prior session, counters intact.
		existing.Status = model.SessionActive
		existing.StoppedAt = nil
		existing.StopReason = ""
		existing.IntervalSec = settings.IntervalSec
		existing.AccuracyTier = settings.AccuracyTier
		existing.TrackingLevel = string(level)
		if err := m.store.SaveSession(ctx, existing); err != nil {
			return nil, err
		}
		m.snapshot(ctx, existing)
		return existing, nil
	}

	session := &model.TrackingSession{
		TripID:        tripID,
		UserID:        userID,
		Status:        model.SessionActive,
		StartedAt:     now,
		IntervalSec:   settings.IntervalSec,
		AccuracyTier:  settings.AccuracyTier,
		TrackingLevel: string(level),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	m.snapshot(ctx, session)
	return session, nil
}

// RecordUpdate bumps the counters for one accepted sample.
func (m *Manager) RecordUpdate(ctx context.Context, tripID string, distanceDeltaKm float64) (*model.TrackingSession, error) {
	return m.RecordBatch(ctx, tripID, 1, distanceDeltaKm)
}

// RecordBatch bumps the counters for a batch of accepted samples in one
// serialized write. Fails with ErrSessionNotActive unless the session is
// active.
func (m *Manager) RecordBatch(ctx context.Context, tripID string, updates int, distanceKm float64) (*model.TrackingSession, error) {
	unlock := m.locks.Lock(tripID)
	defer unlock()

	session, err := m.store.GetSession(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: trip %s", apperrors.ErrSessionNotFound, tripID)
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: trip %s is %s", apperrors.ErrSessionNotActive, tripID, session.Status)
	}

	session.TotalUpdates += int64(updates)
	session.TotalDistanceKm += distanceKm
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	m.snapshot(ctx, session)
	return session, nil
}

// Stop terminates the session and freezes the duration counter. Fails with
// ErrSessionNotFound when the trip has no session.
func (m *Manager) Stop(ctx context.Context, tripID, reason string) (*model.TrackingSession, error) {
	return m.terminate(ctx, tripID, reason, model.SessionStopped)
}

// Complete terminates the session marking the trip as delivered.
func (m *Manager) Complete(ctx context.Context, tripID, reason string) (*model.TrackingSession, error) {
	return m.terminate(ctx, tripID, reason, model.SessionCompleted)
}

func (m *Manager) terminate(ctx context.Context, tripID, reason string, status model.SessionStatus) (*model.TrackingSession, error) {
	unlock := m.locks.Lock(tripID)
	defer unlock()

	session, err := m.store.GetSession(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: trip %s", apperrors.ErrSessionNotFound, tripID)
	}

	now := m.now().UTC()
	session.Status = status
	session.StoppedAt = &now
	session.StopReason = reason
	session.TotalDurationMin = now.Sub(session.StartedAt).Minutes()
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	// Drop the snapshot so in-flight samples fall through to storage and
	// see the terminal status.
	if err := m.snaps.InvalidateSession(ctx, tripID); err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Warn("failed to invalidate session snapshot")
	}
	return session, nil
}

// Pause suspends an active session without resetting counters.
func (m *Manager) Pause(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	return m.toggle(ctx, tripID, model.SessionActive, model.SessionPaused)
}

// Resume reactivates a paused session.
func (m *Manager) Resume(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	return m.toggle(ctx, tripID, model.SessionPaused, model.SessionActive)
}

func (m *Manager) toggle(ctx context.Context, tripID string, from, to model.SessionStatus) (*model.TrackingSession, error) {
	unlock := m.locks.Lock(tripID)
	defer unlock()

	session, err := m.store.GetSession(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: trip %s", apperrors.ErrSessionNotFound, tripID)
	}
	if session.Status != from {
		return nil, fmt.Errorf("%w: trip %s is %s, expected %s",
			apperrors.ErrSessionNotActive, tripID, session.Status, from)
	}

	session.Status = to
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	m.snapshot(ctx, session)
	return session, nil
}

// Get returns the session for a trip, consulting the snapshot cache first.
// Cache errors fall through to storage; the session-activity decision itself
// is fail-closed, so a storage error is returned rather than guessed around.
func (m *Manager) Get(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	if snap, found, err := m.snaps.Session(ctx, tripID); err == nil && found {
		return snap, nil
	} else if err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Warn("session snapshot read failed, falling back to storage")
	}

	session, err := m.store.GetSession(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: trip %s", apperrors.ErrSessionNotFound, tripID)
	}
	m.snapshot(ctx, session)
	return session, nil
}

// RequireActive returns the session when it is active, or
// ErrSessionNotActive / ErrSessionNotFound otherwise.
func (m *Manager) RequireActive(ctx context.Context, tripID string) (*model.TrackingSession, error) {
	session, err := m.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: trip %s is %s", apperrors.ErrSessionNotActive, tripID, session.Status)
	}
	return session, nil
}

func (m *Manager) snapshot(ctx context.Context, session *model.TrackingSession) {
	if err := m.snaps.SetSession(ctx, session); err != nil {
		logrus.WithField("trip_id", session.TripID).WithError(err).Warn("failed to cache session snapshot")
	}
}
