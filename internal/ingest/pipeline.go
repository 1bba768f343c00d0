// Package ingest validates incoming GPS samples and runs them through the
// full pipeline: session gate, privacy filter, metric computation,
// persistence, cache update and geofence evaluation.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/internal/apperrors"
	"delivery-tracking-backend/internal/cache"
	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/geofence"
	"delivery-tracking-backend/internal/model"
	"delivery-tracking-backend/internal/privacy"
	"delivery-tracking-backend/internal/session"
	"delivery-tracking-backend/internal/store"
)

// RawSample is one inbound GPS fix as reported by a device, before
// validation. A nil Timestamp means "now".
type RawSample struct {
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	AccuracyM   *float64   `json:"accuracy_m,omitempty"`
	AltitudeM   *float64   `json:"altitude_m,omitempty"`
	BearingDeg  *float64   `json:"bearing_deg,omitempty"`
	SpeedMps    *float64   `json:"speed_mps,omitempty"`
	BatteryPct  *float64   `json:"battery_pct,omitempty"`
	NetworkType string     `json:"network_type,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// IngestResult is the outcome of a single accepted sample.
type IngestResult struct {
	SampleID        string                `json:"sample_id"`
	FilteredSample  model.LocationSample  `json:"filtered_sample"`
	DistanceDeltaKm float64               `json:"distance_delta_km"`
	SpeedKmh        float64               `json:"speed_kmh,omitempty"`
	Events          []model.GeofenceEvent `json:"events,omitempty"`
}

// BatchItemResult is the per-item outcome of a batch ingestion. Failed items
// echo the original input for client-side correction.
type BatchItemResult struct {
	Index     int        `json:"index"`
	SampleID  string     `json:"sample_id,omitempty"`
	ErrorKind string     `json:"error,omitempty"`
	Input     *RawSample `json:"input,omitempty"`
}

// BatchResult aggregates a batch ingestion.
type BatchResult struct {
	Items           []BatchItemResult     `json:"items"`
	Accepted        int                   `json:"accepted"`
	TotalDistanceKm float64               `json:"total_distance_km"`
	FilteredSample  *model.LocationSample `json:"filtered_sample,omitempty"`
	Events          []model.GeofenceEvent `json:"events,omitempty"`
}

// Pipeline wires the ingestion steps together.
type Pipeline struct {
	store     store.Store
	sessions  *session.Manager
	filter    *privacy.Filter
	locations *cache.CurrentLocationCache
	evaluator *geofence.Evaluator
	now       func() time.Time
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(s store.Store, sessions *session.Manager, filter *privacy.Filter, locations *cache.CurrentLocationCache, evaluator *geofence.Evaluator) *Pipeline {
	return &Pipeline{
		store:     s,
		sessions:  sessions,
		filter:    filter,
		locations: locations,
		evaluator: evaluator,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (p *Pipeline) SetNowFunc(now func() time.Time) {
	p.now = now
}

// Validate checks a raw sample's plausibility bounds.
func Validate(raw *RawSample) error {
	if raw.Latitude < -90 || raw.Latitude > 90 || raw.Longitude < -180 || raw.Longitude > 180 {
		return fmt.Errorf("%w: (%v,%v)", apperrors.ErrInvalidCoordinates, raw.Latitude, raw.Longitude)
	}
	if raw.AccuracyM != nil && (*raw.AccuracyM < 0 || *raw.AccuracyM > 10000) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidAccuracy, *raw.AccuracyM)
	}
	if raw.SpeedMps != nil && (*raw.SpeedMps < 0 || *raw.SpeedMps > 500) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidSpeed, *raw.SpeedMps)
	}
	return nil
}

// IngestOne runs a single sample through the full pipeline.
func (p *Pipeline) IngestOne(ctx context.Context, tripID, userID string, raw RawSample) (*IngestResult, error) {
	if err := Validate(&raw); err != nil {
		return nil, err
	}

	sess, err := p.sessions.RequireActive(ctx, tripID)
	if err != nil {
		return nil, err
	}
	level, err := privacy.ParseLevel(sess.TrackingLevel)
	if err != nil {
		level = privacy.LevelPrecise
	}

	sample := p.toSample(tripID, userID, raw)

	last, err := p.store.LastSample(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	deltaKm, speedKmh := deriveMetrics(last, &sample)

	filtered := p.filter.Apply(sample, level)

	// The raw sample is what gets persisted and measured; a failed write
	// aborts this sample's ingestion.
	if err := p.store.AppendSample(ctx, &sample); err != nil {
		return nil, err
	}

	// Cache writes are fail-open: a degraded cache only slows reads down.
	if err := p.locations.SetCurrent(ctx, &filtered); err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Warn("current-location cache update failed")
	}

	// The counter update re-checks activity under the per-trip lock, which
	// rejects samples still in flight after a concurrent stop.
	if _, err := p.sessions.RecordUpdate(ctx, tripID, deltaKm); err != nil {
		return nil, err
	}

	events, err := p.evaluator.Evaluate(ctx, tripID, userID, sample.Coords(), sample.Timestamp)
	if err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Error("geofence evaluation failed")
	}

	return &IngestResult{
		SampleID:        sample.ID,
		FilteredSample:  filtered,
		DistanceDeltaKm: deltaKm,
		SpeedKmh:        speedKmh,
		Events:          events,
	}, nil
}

// IngestBatch validates each sample independently, sorts the valid subset by
// timestamp, persists it in one bulk write, and evaluates geofences once
// using the latest sample.
func (p *Pipeline) IngestBatch(ctx context.Context, tripID, userID string, raws []RawSample) (*BatchResult, error) {
	sess, err := p.sessions.RequireActive(ctx, tripID)
	if err != nil {
		return nil, err
	}
	level, err := privacy.ParseLevel(sess.TrackingLevel)
	if err != nil {
		level = privacy.LevelPrecise
	}

	result := &BatchResult{Items: make([]BatchItemResult, 0, len(raws))}

	// Per-item validation: failures report and continue, they never abort
	// the batch.
	var valid []model.LocationSample
	for i := range raws {
		raw := raws[i]
		if err := Validate(&raw); err != nil {
			result.Items = append(result.Items, BatchItemResult{
				Index:     i,
				ErrorKind: apperrors.Kind(err),
				Input:     &raw,
			})
			continue
		}
		sample := p.toSample(tripID, userID, raw)
		valid = append(valid, sample)
		result.Items = append(result.Items, BatchItemResult{Index: i, SampleID: sample.ID})
	}

	if len(valid) == 0 {
		return result, nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	// Deltas chain off the last persisted sample, then each prior batch item.
	last, err := p.store.LastSample(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	prev := last
	var totalKm float64
	for i := range valid {
		deltaKm, _ := deriveMetrics(prev, &valid[i])
		totalKm += deltaKm
		prev = &valid[i]
	}

	// One bulk write; a persistence failure aborts the whole batch.
	if err := p.store.AppendSamples(ctx, valid); err != nil {
		return nil, err
	}

	latest := valid[len(valid)-1]
	filtered := p.filter.Apply(latest, level)
	if err := p.locations.SetCurrent(ctx, &filtered); err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Warn("current-location cache update failed")
	}

	if _, err := p.sessions.RecordBatch(ctx, tripID, len(valid), totalKm); err != nil {
		return nil, err
	}

	events, err := p.evaluator.Evaluate(ctx, tripID, userID, latest.Coords(), latest.Timestamp)
	if err != nil {
		logrus.WithField("trip_id", tripID).WithError(err).Error("geofence evaluation failed")
	}

	result.Accepted = len(valid)
	result.TotalDistanceKm = totalKm
	result.FilteredSample = &filtered
	result.Events = events
	return result, nil
}

// toSample materializes a validated raw sample.
func (p *Pipeline) toSample(tripID, userID string, raw RawSample) model.LocationSample {
	ts := p.now().UTC()
	if raw.Timestamp != nil {
		ts = raw.Timestamp.UTC()
	}
	return model.LocationSample{
		ID:          uuid.NewString(),
		TripID:      tripID,
		UserID:      userID,
		Latitude:    raw.Latitude,
		Longitude:   raw.Longitude,
		AccuracyM:   raw.AccuracyM,
		AltitudeM:   raw.AltitudeM,
		BearingDeg:  raw.BearingDeg,
		SpeedMps:    raw.SpeedMps,
		BatteryPct:  raw.BatteryPct,
		NetworkType: raw.NetworkType,
		Timestamp:   ts,
	}
}

// deriveMetrics computes the incremental distance from the previous sample
// and, when the device did not report a speed, derives one from distance
// over elapsed time. The derived speed is written back onto the sample.
func deriveMetrics(prev, cur *model.LocationSample) (deltaKm, speedKmh float64) {
	if prev == nil {
		return 0, 0
	}

	deltaKm = geo.Haversine(prev.Coords(), cur.Coords())

	if cur.SpeedMps != nil {
		return deltaKm, *cur.SpeedMps * 3.6
	}

	elapsed := cur.Timestamp.Sub(prev.Timestamp)
	if elapsed > 0 {
		speedKmh = deltaKm / elapsed.Hours()
		mps := speedKmh / 3.6
		cur.SpeedMps = &mps
	}
	return deltaKm, speedKmh
}
