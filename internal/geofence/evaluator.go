// Package geofence evaluates location samples against the active geofence
// set of a trip and turns containment changes into enter/exit/dwell events.
package geofence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/kv"
	"delivery-tracking-backend/internal/model"
	"delivery-tracking-backend/internal/notification"
	"delivery-tracking-backend/internal/store"
)

// Evaluator detects geofence transitions. The read-modify-write of one
// (user, geofence) containment state is serialized through a keyed lock so
// two concurrent samples cannot both observe wasInside=false and both emit
// an enter event.
type Evaluator struct {
	store store.Store
	sink  notification.Sink
	locks *kv.KeyedMutex
}

// NewEvaluator creates an Evaluator. The sink may be nil when nobody listens
// for notifications.
func NewEvaluator(s store.Store, sink notification.Sink) *Evaluator {
	return &Evaluator{
		store: s,
		sink:  sink,
		locks: kv.NewKeyedMutex(),
	}
}

// Evaluate tests coords against every active geofence bound to the trip and
// returns the emitted events. The sample's timestamp is the evaluation
// instant, which keeps dwell math independent of processing latency.
func (e *Evaluator) Evaluate(ctx context.Context, tripID, userID string, coords geo.Point, at time.Time) ([]model.GeofenceEvent, error) {
	fences, err := e.store.GetGeofencesForTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var events []model.GeofenceEvent
	for i := range fences {
		fence := &fences[i]
		if !e.windowOpen(fence, at) {
			continue
		}

		event, err := e.evaluateFence(ctx, fence, tripID, userID, coords, at)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"trip_id":     tripID,
				"geofence_id": fence.ID,
			}).WithError(err).Error("geofence evaluation failed")
			continue
		}
		if event == nil {
			continue
		}

		events = append(events, *event)
		if e.sink != nil && e.shouldNotify(fence, event.Kind) {
			e.sink.Notify(ctx, *event)
		}
	}
	return events, nil
}

// evaluateFence runs the transition state machine for one fence under the
// per-(user, geofence) lock.
func (e *Evaluator) evaluateFence(ctx context.Context, fence *model.Geofence, tripID, userID string, coords geo.Point, at time.Time) (*model.GeofenceEvent, error) {
	unlock := e.locks.Lock(userID + "|" + fence.ID)
	defer unlock()

	state, err := e.store.GetContainmentState(ctx, userID, fence.ID)
	if err != nil {
		return nil, err
	}
	// Absent state means first observation: it can produce enter, never exit.
	wasInside := state != nil && state.IsInside

	isInside, err := Contains(fence, coords)
	if err != nil {
		return nil, err
	}

	var event *model.GeofenceEvent
	switch {
	case isInside && !wasInside:
		event = e.newEvent(fence, tripID, userID, coords, model.EventEnter, at, nil)

	case !isInside && wasInside:
		event = e.newEvent(fence, tripID, userID, coords, model.EventExit, at, nil)

	case isInside && wasInside:
		if fence.DwellEnabled && !state.DwellNotified {
			dwellSeconds := int(at.Sub(state.SinceTimestamp).Seconds())
			if dwellSeconds >= fence.DwellDurationSec {
				event = e.newEvent(fence, tripID, userID, coords, model.EventDwell, at, &dwellSeconds)
			}
		}
	}

	if err := e.updateState(ctx, state, fence.ID, userID, wasInside, isInside, at, event); err != nil {
		return nil, err
	}

	if event != nil {
		if err := e.store.SaveEvent(ctx, event); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// updateState writes the containment state back. On a flip SinceTimestamp
// resets and the dwell marker clears; a dwell emission only sets the marker.
func (e *Evaluator) updateState(ctx context.Context, state *model.ContainmentState, geofenceID, userID string, wasInside, isInside bool, at time.Time, event *model.GeofenceEvent) error {
	flipped := wasInside != isInside
	dwelt := event != nil && event.Kind == model.EventDwell

	if state != nil && !flipped && !dwelt {
		// Nothing to record; SinceTimestamp must survive unchanged.
		return nil
	}

	next := &model.ContainmentState{
		UserID:         userID,
		GeofenceID:     geofenceID,
		IsInside:       isInside,
		SinceTimestamp: at,
		DwellNotified:  false,
	}
	if state != nil && !flipped {
		next.SinceTimestamp = state.SinceTimestamp
		next.DwellNotified = state.DwellNotified
	}
	if dwelt {
		next.DwellNotified = true
	}
	return e.store.PutContainmentState(ctx, next)
}

func (e *Evaluator) newEvent(fence *model.Geofence, tripID, userID string, coords geo.Point, kind model.EventKind, at time.Time, dwellSeconds *int) *model.GeofenceEvent {
	return &model.GeofenceEvent{
		ID:           uuid.NewString(),
		GeofenceID:   fence.ID,
		UserID:       userID,
		TripID:       tripID,
		Kind:         kind,
		Latitude:     coords.Lat,
		Longitude:    coords.Lng,
		DwellSeconds: dwellSeconds,
		TriggeredAt:  at,
	}
}

// shouldNotify applies the fence's notification policy before forwarding to
// the sink.
func (e *Evaluator) shouldNotify(fence *model.Geofence, kind model.EventKind) bool {
	switch kind {
	case model.EventEnter:
		return fence.NotifyOnEntry
	case model.EventExit:
		return fence.NotifyOnExit
	case model.EventDwell:
		return fence.DwellEnabled
	default:
		return false
	}
}

// windowOpen checks the fence's activation window at the evaluation instant.
// Window bounds are naive local datetimes interpreted in the fence's
// configured timezone.
func (e *Evaluator) windowOpen(fence *model.Geofence, at time.Time) bool {
	if fence.ActiveFrom == nil && fence.ActiveUntil == nil {
		return true
	}

	loc := time.UTC
	if fence.Timezone != "" {
		l, err := time.LoadLocation(fence.Timezone)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"geofence_id": fence.ID,
				"timezone":    fence.Timezone,
			}).WithError(err).Warn("invalid geofence timezone, comparing in UTC")
		} else {
			loc = l
		}
	}

	const layout = "2006-01-02 15:04:05"
	if fence.ActiveFrom != nil {
		from, err := time.ParseInLocation(layout, *fence.ActiveFrom, loc)
		if err != nil || at.Before(from) {
			return false
		}
	}
	if fence.ActiveUntil != nil {
		until, err := time.ParseInLocation(layout, *fence.ActiveUntil, loc)
		if err != nil || at.After(until) {
			return false
		}
	}
	return true
}

// Contains tests a point against the fence geometry. The circle boundary is
// inclusive; the polygon boundary is exclusive.
func Contains(fence *model.Geofence, p geo.Point) (bool, error) {
	switch fence.GeometryType {
	case model.GeometryCircle:
		return geo.PointInCircle(p, fence.Center(), fence.RadiusM), nil
	case model.GeometryPolygon:
		if len(fence.Ring) < 4 {
			return false, fmt.Errorf("geofence %s: polygon ring has %d vertices", fence.ID, len(fence.Ring))
		}
		return geo.PointInPolygon(p, fence.Ring), nil
	default:
		return false, fmt.Errorf("geofence %s: unknown geometry type %q", fence.ID, fence.GeometryType)
	}
}
