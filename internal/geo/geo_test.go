package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKnownDistance(t *testing.T) {
	// New York City to Boston, roughly 306 km.
	nyc := Point{Lat: 40.7128, Lng: -74.0060}
	boston := Point{Lat: 42.3601, Lng: -71.0589}

	d := Haversine(nyc, boston)
	assert.InEpsilon(t, 306.0, d, 0.01, "expected ~306 km, got %v", d)
}

func TestHaversineSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		a := Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}
		b := Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}
		assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-9)
	}
}

func TestHaversineZeroDistance(t *testing.T) {
	p := Point{Lat: 40.7128, Lng: -74.0060}
	assert.Equal(t, 0.0, Haversine(p, p))
}

func TestPointInCircleBoundaryInclusive(t *testing.T) {
	center := Point{Lat: 40.7128, Lng: -74.0060}
	const radiusM = 100.0

	// A point placed exactly radius meters away counts as inside.
	onBoundary := DestinationPoint(center, radiusM, 45)
	assert.True(t, PointInCircle(onBoundary, center, radiusM))

	justOutside := DestinationPoint(center, radiusM+1, 45)
	assert.False(t, PointInCircle(justOutside, center, radiusM))

	justInside := DestinationPoint(center, radiusM-1, 45)
	assert.True(t, PointInCircle(justInside, center, radiusM))
}

func TestDestinationPointRoundTrip(t *testing.T) {
	start := Point{Lat: 40.7128, Lng: -74.0060}
	testCases := []struct {
		name      string
		distanceM float64
		bearing   float64
	}{
		{"north 1km", 1000, 0},
		{"east 5km", 5000, 90},
		{"southwest 500m", 500, 225},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := DestinationPoint(start, tc.distanceM, tc.bearing)
			assert.InDelta(t, tc.distanceM, HaversineMeters(start, dest), tc.distanceM*0.001)
		})
	}
}

func TestBearing(t *testing.T) {
	origin := Point{Lat: 0, Lng: 0}

	assert.InDelta(t, 0, Bearing(origin, Point{Lat: 1, Lng: 0}), 0.5)
	assert.InDelta(t, 90, Bearing(origin, Point{Lat: 0, Lng: 1}), 0.5)
	assert.InDelta(t, 180, Bearing(origin, Point{Lat: -1, Lng: 0}), 0.5)
	assert.InDelta(t, 270, Bearing(origin, Point{Lat: 0, Lng: -1}), 0.5)
}

// closedSquare is a unit square around the origin, closed ring form.
var closedSquare = []Point{
	{Lat: -1, Lng: -1},
	{Lat: -1, Lng: 1},
	{Lat: 1, Lng: 1},
	{Lat: 1, Lng: -1},
	{Lat: -1, Lng: -1},
}

func TestPointInPolygon(t *testing.T) {
	testCases := []struct {
		name   string
		point  Point
		inside bool
	}{
		{"center", Point{Lat: 0, Lng: 0}, true},
		{"near corner inside", Point{Lat: 0.99, Lng: 0.99}, true},
		{"outside east", Point{Lat: 0, Lng: 2}, false},
		{"outside north", Point{Lat: 2, Lng: 0}, false},
		{"far away", Point{Lat: 40, Lng: -74}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.inside, PointInPolygon(tc.point, closedSquare))
		})
	}
}

// The polygon boundary is exclusive, unlike the circle boundary. A point on
// a vertical edge sits exactly on the ray-casting crossing and stays out.
func TestPointInPolygonBoundaryExclusive(t *testing.T) {
	onEdge := Point{Lat: 0, Lng: 1}
	assert.False(t, PointInPolygon(onEdge, closedSquare))

	onVertex := Point{Lat: 1, Lng: 1}
	assert.False(t, PointInPolygon(onVertex, closedSquare))
}

func TestPointInPolygonDegenerateRing(t *testing.T) {
	assert.False(t, PointInPolygon(Point{Lat: 0, Lng: 0}, nil))
	assert.False(t, PointInPolygon(Point{Lat: 0, Lng: 0}, closedSquare[:3]))
}

func TestClosestPointOnSegment(t *testing.T) {
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 1}

	// Perpendicular projection lands mid-segment.
	mid := ClosestPointOnSegment(Point{Lat: 1, Lng: 0.5}, a, b)
	assert.InDelta(t, 0.0, mid.Lat, 1e-9)
	assert.InDelta(t, 0.5, mid.Lng, 1e-9)

	// Beyond either end, the endpoint is closest.
	assert.Equal(t, a, ClosestPointOnSegment(Point{Lat: 0, Lng: -5}, a, b))
	assert.Equal(t, b, ClosestPointOnSegment(Point{Lat: 0, Lng: 5}, a, b))

	// Zero-length segment degenerates to the single point.
	assert.Equal(t, a, ClosestPointOnSegment(Point{Lat: 3, Lng: 3}, a, a))
}
