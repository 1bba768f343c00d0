package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used for great-circle math.
	EarthRadiusKm = 6371.0

	// MetersPerDegree is the approximate length of one degree of latitude.
	MetersPerDegree = 111320.0
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Haversine returns the great-circle distance between two points in
// kilometers.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// HaversineMeters returns the great-circle distance between two points in
// meters.
func HaversineMeters(a, b Point) float64 {
	return Haversine(a, b) * 1000
}

// Bearing returns the initial bearing from a to b in degrees, normalized to
// [0,360).
func Bearing(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi

	return math.Mod(deg+360, 360)
}

// DestinationPoint returns the point reached by traveling distanceM meters
// from p along the given bearing in degrees.
func DestinationPoint(p Point, distanceM, bearingDeg float64) Point {
	angular := (distanceM / 1000) / EarthRadiusKm
	brng := bearingDeg * math.Pi / 180
	lat1 := p.Lat * math.Pi / 180
	lng1 := p.Lng * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * 180 / math.Pi,
		Lng: math.Mod(lng2*180/math.Pi+540, 360) - 180,
	}
}

// PointInCircle reports whether p lies within radiusM meters of center. A
// point exactly on the boundary counts as inside.
func PointInCircle(p, center Point, radiusM float64) bool {
	return HaversineMeters(p, center) <= radiusM
}

// PointInPolygon reports whether p lies strictly inside the closed ring using
// even-odd ray casting. A point exactly on the boundary counts as outside;
// this differs from the inclusive circle convention on purpose.
func PointInPolygon(p Point, ring []Point) bool {
	if len(ring) < 4 {
		return false
	}
	inside := false
	// The ring is closed (first vertex repeated last), so the usual
	// j = previous-index walk skips the duplicate.
	n := len(ring) - 1
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			cross := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < cross {
				inside = !inside
			}
		}
	}
	return inside
}

// ClosestPointOnSegment returns the point on segment [a,b] closest to p,
// using a local equirectangular projection. Good enough at segment scale.
func ClosestPointOnSegment(p, a, b Point) Point {
	// Project onto a plane tangent at a; longitude is scaled by cos(lat)
	// so east-west and north-south meters are comparable.
	scale := math.Cos(a.Lat * math.Pi / 180)
	px := (p.Lng - a.Lng) * scale
	py := p.Lat - a.Lat
	bx := (b.Lng - a.Lng) * scale
	by := b.Lat - a.Lat

	segLenSq := bx*bx + by*by
	if segLenSq == 0 {
		return a
	}

	t := (px*bx + py*by) / segLenSq
	t = math.Max(0, math.Min(1, t))

	return Point{
		Lat: a.Lat + t*by,
		Lng: a.Lng + t*bx/scale,
	}
}

// DistanceToSegmentM returns the distance in meters from p to segment [a,b].
func DistanceToSegmentM(p, a, b Point) float64 {
	return HaversineMeters(p, ClosestPointOnSegment(p, a, b))
}
