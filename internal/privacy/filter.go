package privacy

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"delivery-tracking-backend/internal/geo"
	"delivery-tracking-backend/internal/model"
)

// Level is a user-chosen tracking precision policy.
type Level string

const (
	LevelPrecise     Level = "precise"
	LevelApproximate Level = "approximate"
	LevelMinimal     Level = "minimal"
)

const (
	approximateRadiusM = 500.0
	minimalRadiusM     = 5000.0

	approximateBucket = 5 * time.Minute
	minimalBucket     = 30 * time.Minute
)

// ParseLevel validates a tracking level string, defaulting empty to precise.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelPrecise, LevelApproximate, LevelMinimal:
		return Level(s), nil
	case "":
		return LevelPrecise, nil
	default:
		return "", fmt.Errorf("unknown tracking level %q", s)
	}
}

// Filter reduces the positional and temporal precision of samples before
// they are cached or exposed externally. The raw sample is what gets
// persisted and measured; the filtered one is what others see.
//
// Randomness comes from an injected source so tests can seed it.
type Filter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFilter creates a Filter around the given random source.
func NewFilter(rng *rand.Rand) *Filter {
	return &Filter{rng: rng}
}

// NewDefaultFilter creates a Filter seeded from the wall clock.
func NewDefaultFilter() *Filter {
	return NewFilter(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// Apply returns a privacy-reduced copy of the sample for the given level.
// The input is never mutated.
func (f *Filter) Apply(s model.LocationSample, level Level) model.LocationSample {
	out := s

	switch level {
	case LevelApproximate:
		p := f.generalize(s.Coords(), approximateRadiusM)
		out.Latitude, out.Longitude = p.Lat, p.Lng
		out.Timestamp = s.Timestamp.Truncate(approximateBucket)
		out.BearingDeg = nil

	case LevelMinimal:
		p := f.generalize(s.Coords(), minimalRadiusM)
		out.Latitude, out.Longitude = p.Lat, p.Lng
		out.Timestamp = s.Timestamp.Truncate(minimalBucket)
		out.BearingDeg = nil
		out.SpeedMps = nil
		out.AltitudeM = nil
		out.BatteryPct = nil
		out.NetworkType = ""
		// Reported accuracy can never be tighter than the blur radius.
		acc := minimalRadiusM
		if s.AccuracyM != nil && *s.AccuracyM > acc {
			acc = *s.AccuracyM
		}
		out.AccuracyM = &acc

	default: // precise: pass-through
	}

	return out
}

// generalize moves p by a random offset of at most radiusM meters, using a
// local equirectangular approximation for the degree conversion.
func (f *Filter) generalize(p geo.Point, radiusM float64) geo.Point {
	f.mu.Lock()
	theta := f.rng.Float64() * 2 * math.Pi
	d := f.rng.Float64() * radiusM
	f.mu.Unlock()

	latOffset := d * math.Cos(theta) / geo.MetersPerDegree
	lngOffset := d * math.Sin(theta) / (geo.MetersPerDegree * math.Cos(p.Lat*math.Pi/180))

	return geo.Point{Lat: p.Lat + latOffset, Lng: p.Lng + lngOffset}
}
