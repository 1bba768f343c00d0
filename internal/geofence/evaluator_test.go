package geofence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/model"
	"delivery-tracking-backend/internal/store"
)

// recordingSink captures every notified event.
type recordingSink struct {
	mu     sync.Mutex
	events []model.GeofenceEvent
}

func (s *recordingSink) Notify(_ context.Context, event model.GeofenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) kinds() []model.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestEvaluator(t *testing.T) (*Evaluator, store.Store, *recordingSink) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Geofence{}, &model.GeofenceEvent{}, &model.ContainmentState{}))

	s := store.NewGormStore(db)
	sink := &recordingSink{}
	return NewEvaluator(s, sink), s, sink
}

var depotCenter = geo.Point{Lat: 52.5200, Lng: 13.4050}

func circleFence(id, tripID string, radiusM float64, dwellSec int) *model.Geofence {
	return &model.Geofence{
		ID:               id,
		TripID:           tripID,
		Kind:             model.GeofenceDelivery,
		GeometryType:     model.GeometryCircle,
		CenterLat:        depotCenter.Lat,
		CenterLng:        depotCenter.Lng,
		RadiusM:          radiusM,
		NotifyOnEntry:    true,
		NotifyOnExit:     true,
		DwellEnabled:     dwellSec > 0,
		DwellDurationSec: dwellSec,
		Active:           true,
	}
}

// Lifecycle across a circular fence with dwell: approach, enter, linger past
// the dwell threshold, leave.
func TestEvaluateEnterDwellExit(t *testing.T) {
	ev, s, sink := newTestEvaluator(t)
	ctx := context.Background()
	require.NoError(t, s.CreateGeofence(ctx, circleFence("G1", "T1", 100, 300)))

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	outside := geo.DestinationPoint(depotCenter, 250, 90)
	inside := geo.DestinationPoint(depotCenter, 40, 90)

	// t=0: outside, nothing happens.
	events, err := ev.Evaluate(ctx, "T1", "U1", outside, t0)
	require.NoError(t, err)
	assert.Empty(t, events)

	// t=60s: crossed in.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, t0.Add(60*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEnter, events[0].Kind)
	assert.Equal(t, "G1", events[0].GeofenceID)

	// t=180s: still inside, dwell threshold not reached.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, t0.Add(180*time.Second))
	require.NoError(t, err)
	assert.Empty(t, events)

	// t=360s: 300s inside, dwell fires.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, t0.Add(360*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDwell, events[0].Kind)
	require.NotNil(t, events[0].DwellSeconds)
	assert.Equal(t, 300, *events[0].DwellSeconds)

	// t=400s: dwell already emitted for this period, no repeat.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, t0.Add(400*time.Second))
	require.NoError(t, err)
	assert.Empty(t, events)

	// t=420s: crossed out.
	events, err = ev.Evaluate(ctx, "T1", "U1", outside, t0.Add(420*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventExit, events[0].Kind)

	// Every emitted event was persisted and notified.
	stored, err := s.EventsForTrip(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, []model.EventKind{model.EventEnter, model.EventDwell, model.EventExit}, sink.kinds())
}

// Re-entering after an exit starts a fresh inside-period, so the dwell clock
// restarts and a second dwell may fire.
func TestDwellResetsAfterReentry(t *testing.T) {
	ev, s, _ := newTestEvaluator(t)
	ctx := context.Background()
	require.NoError(t, s.CreateGeofence(ctx, circleFence("G1", "T1", 100, 120)))

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	outside := geo.DestinationPoint(depotCenter, 250, 0)
	inside := geo.DestinationPoint(depotCenter, 20, 0)

	steps := []struct {
		at    time.Duration
		p     geo.Point
		kinds []model.EventKind
	}{
		{0, inside, []model.EventKind{model.EventEnter}},
		{130 * time.Second, inside, []model.EventKind{model.EventDwell}},
		{200 * time.Second, outside, []model.EventKind{model.EventExit}},
		{260 * time.Second, inside, []model.EventKind{model.EventEnter}},
		{300 * time.Second, inside, nil}, // only 40s into the new period
		{400 * time.Second, inside, []model.EventKind{model.EventDwell}},
	}

	for i, step := range steps {
		events, err := ev.Evaluate(ctx, "T1", "U1", step.p, t0.Add(step.at))
		require.NoError(t, err, "step %d", i)
		got := make([]model.EventKind, 0, len(events))
		for _, e := range events {
			got = append(got, e.Kind)
		}
		assert.Equal(t, step.kinds, append([]model.EventKind(nil), got...), "step %d", i)
	}
}

// The very first observation of a user can produce an enter but never an
// exit, regardless of where they start.
func TestFirstObservationNeverExits(t *testing.T) {
	ev, s, _ := newTestEvaluator(t)
	ctx := context.Background()
	require.NoError(t, s.CreateGeofence(ctx, circleFence("G1", "T1", 100, 0)))

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// First sample outside: no exit invented.
	events, err := ev.Evaluate(ctx, "T1", "U1", geo.DestinationPoint(depotCenter, 500, 45), at)
	require.NoError(t, err)
	assert.Empty(t, events)

	// First sample of another user inside: enter.
	events, err = ev.Evaluate(ctx, "T1", "U2", geo.DestinationPoint(depotCenter, 10, 45), at)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEnter, events[0].Kind)
}

// The circle boundary belongs to the fence.
func TestCircleBoundaryIsInside(t *testing.T) {
	fence := circleFence("G1", "T1", 100, 0)
	onBoundary := geo.DestinationPoint(depotCenter, 100, 180)

	inside, err := Contains(fence, onBoundary)
	require.NoError(t, err)
	assert.True(t, inside)

	justPast := geo.DestinationPoint(depotCenter, 101, 180)
	inside, err = Contains(fence, justPast)
	require.NoError(t, err)
	assert.False(t, inside)
}

func polygonFence(id, tripID string) *model.Geofence {
	// Roughly 200 m x 200 m box around the depot.
	d := 0.001
	return &model.Geofence{
		ID:           id,
		TripID:       tripID,
		Kind:         model.GeofenceRestricted,
		GeometryType: model.GeometryPolygon,
		Ring: []geo.Point{
			{Lat: depotCenter.Lat - d, Lng: depotCenter.Lng - d},
			{Lat: depotCenter.Lat - d, Lng: depotCenter.Lng + d},
			{Lat: depotCenter.Lat + d, Lng: depotCenter.Lng + d},
			{Lat: depotCenter.Lat + d, Lng: depotCenter.Lng - d},
			{Lat: depotCenter.Lat - d, Lng: depotCenter.Lng - d},
		},
		NotifyOnEntry: true,
		Active:        true,
	}
}

func TestPolygonContainment(t *testing.T) {
	fence := polygonFence("G1", "T1")

	inside, err := Contains(fence, depotCenter)
	require.NoError(t, err)
	assert.True(t, inside)

	inside, err = Contains(fence, geo.Point{Lat: depotCenter.Lat + 0.01, Lng: depotCenter.Lng})
	require.NoError(t, err)
	assert.False(t, inside)

	// A vertex sits on the boundary, which is exclusive for polygons.
	inside, err = Contains(fence, fence.Ring[0])
	require.NoError(t, err)
	assert.False(t, inside)
}

func TestContainsRejectsBadGeometry(t *testing.T) {
	_, err := Contains(&model.Geofence{ID: "G1", GeometryType: "blob"}, depotCenter)
	assert.Error(t, err)

	_, err = Contains(&model.Geofence{
		ID:           "G1",
		GeometryType: model.GeometryPolygon,
		Ring:         []geo.Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
	}, depotCenter)
	assert.Error(t, err)
}

// A fence outside its activation window is invisible to evaluation.
func TestActiveWindow(t *testing.T) {
	ev, s, _ := newTestEvaluator(t)
	ctx := context.Background()

	from := "2025-06-01 10:00:00"
	until := "2025-06-01 18:00:00"
	fence := circleFence("G1", "T1", 100, 0)
	fence.ActiveFrom = &from
	fence.ActiveUntil = &until
	fence.Timezone = "UTC"
	require.NoError(t, s.CreateGeofence(ctx, fence))

	inside := geo.DestinationPoint(depotCenter, 10, 0)

	// Before the window: the crossing is ignored.
	events, err := ev.Evaluate(ctx, "T1", "U1", inside, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)

	// Inside the window: enter fires.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEnter, events[0].Kind)

	// After the window: the exit crossing is ignored too.
	events, err = ev.Evaluate(ctx, "T1", "U1", geo.DestinationPoint(depotCenter, 500, 0), time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)
}

// Window bounds are naive local datetimes interpreted in the fence timezone.
func TestActiveWindowHonorsTimezone(t *testing.T) {
	ev, s, _ := newTestEvaluator(t)
	ctx := context.Background()

	from := "2025-06-01 10:00:00"
	fence := circleFence("G1", "T1", 100, 0)
	fence.ActiveFrom = &from
	fence.Timezone = "America/New_York" // UTC-4 in June
	require.NoError(t, s.CreateGeofence(ctx, fence))

	inside := geo.DestinationPoint(depotCenter, 10, 0)

	// 12:00 UTC is 08:00 in New York, still before the window.
	events, err := ev.Evaluate(ctx, "T1", "U1", inside, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)

	// 15:00 UTC is 11:00 in New York, window open.
	events, err = ev.Evaluate(ctx, "T1", "U1", inside, time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
}

// The sink only sees events the fence's notification policy allows; the
// event log records everything.
func TestNotificationPolicyGatesSink(t *testing.T) {
	ev, s, sink := newTestEvaluator(t)
	ctx := context.Background()

	fence := circleFence("G1", "T1", 100, 0)
	fence.NotifyOnEntry = false
	fence.NotifyOnExit = true
	require.NoError(t, s.CreateGeofence(ctx, fence))

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	inside := geo.DestinationPoint(depotCenter, 10, 0)
	outside := geo.DestinationPoint(depotCenter, 500, 0)

	_, err := ev.Evaluate(ctx, "T1", "U1", inside, t0)
	require.NoError(t, err)
	_, err = ev.Evaluate(ctx, "T1", "U1", outside, t0.Add(time.Minute))
	require.NoError(t, err)

	stored, err := s.EventsForTrip(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, []model.EventKind{model.EventExit}, sink.kinds())
}

// Deactivated fences are excluded from evaluation entirely.
func TestDeactivatedFenceIgnored(t *testing.T) {
	ev, s, _ := newTestEvaluator(t)
	ctx := context.Background()
	require.NoError(t, s.CreateGeofence(ctx, circleFence("G1", "T1", 100, 0)))
	require.NoError(t, s.DeactivateGeofence(ctx, "G1"))

	events, err := ev.Evaluate(ctx, "T1", "U1", geo.DestinationPoint(depotCenter, 10, 0), time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, events)
}
