// Package geo classifies positions against geofence polygons.
package geo

import (
	"math"

	"bikeshare/internal/domain"
)

// EarthRadiusM is the sphere radius used for great-circle distances.
const EarthRadiusM = 6371000.0

// MetersPerDegree approximates one degree of arc near the equator.
const MetersPerDegree = 111000.0

// ParkingStatus is the result of classifying a lock position.
type ParkingStatus string

const (
	ParkingStatusParking  ParkingStatus = "parking"
	ParkingStatusBoundary ParkingStatus = "boundary"
	ParkingStatusOutside  ParkingStatus = "outside"
	ParkingStatusNoPark   ParkingStatus = "no_park"
)

// Lockable reports whether a ride may end at a position with this status.
func (s ParkingStatus) Lockable() bool {
	switch s {
	case ParkingStatusParking, ParkingStatusBoundary, ParkingStatusOutside:
		return true
	case ParkingStatusNoPark:
		return false
	default:
		return false
	}
}

// NeedsRoute reports whether the rider should be pointed at the nearest parking zone.
func (s ParkingStatus) NeedsRoute() bool {
	return s == ParkingStatusNoPark || s == ParkingStatusOutside
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Classify resolves a lock position against zones. No-park containment wins
// outright; otherwise parking containment beats the buffered boundary band.
func Classify(p Point, zones []domain.GeoZone, bufferM float64) ParkingStatus {
	bufferDeg := bufferM / MetersPerDegree
	parking, boundary := false, false

	for i := range zones {
		z := &zones[i]
		switch z.Kind {
		case domain.ZoneKindNoPark:
			if Contains(z.Rings, p) {
				return ParkingStatusNoPark
			}
		case domain.ZoneKindParking:
			if Contains(z.Rings, p) {
				parking = true
			} else if bufferDeg > 0 && distanceToRingsDeg(z.Rings, p) <= bufferDeg {
				boundary = true
			}
		case domain.ZoneKindSlowZone:
		}
	}

	switch {
	case parking:
		return ParkingStatusParking
	case boundary:
		return ParkingStatusBoundary
	default:
		return ParkingStatusOutside
	}
}

// InZone reports whether p lies within any zone of the given kind.
func InZone(p Point, zones []domain.GeoZone, kind domain.ZoneKind) bool {
	for i := range zones {
		if zones[i].Kind == kind && Contains(zones[i].Rings, p) {
			return true
		}
	}
	return false
}

// NearestZoneCentroid returns the closest centroid among zones of kind.
func NearestZoneCentroid(p Point, zones []domain.GeoZone, kind domain.ZoneKind) (Point, bool) {
	var (
		best  Point
		found bool
		min   = math.Inf(1)
	)
	for i := range zones {
		if zones[i].Kind != kind || len(zones[i].Rings) == 0 {
			continue
		}
		c := Centroid(zones[i].Rings[0])
		if d := HaversineM(p, c); d < min {
			min = d
			best = c
			found = true
		}
	}
	return best, found
}

// Contains reports strict containment: inside the exterior ring and outside every hole.
// Points exactly on an edge are not contained.
func Contains(rings [][]domain.Position, p Point) bool {
	if len(rings) == 0 {
		return false
	}
	if onRing(rings[0], p) || !insideRing(rings[0], p) {
		return false
	}
	for _, hole := range rings[1:] {
		if onRing(hole, p) || insideRing(hole, p) {
			return false
		}
	}
	return true
}

// Centroid returns the area-weighted centroid of a ring, falling back to the
// vertex mean for degenerate rings.
func Centroid(ring []domain.Position) Point {
	if len(ring) == 0 {
		return Point{}
	}
	// Shift to the first vertex to keep the cross products well conditioned.
	ox, oy := ring[0].Lon(), ring[0].Lat()
	var area, cx, cy float64
	n := len(ring)
	for i := 0; i < n; i++ {
		x0, y0 := ring[i].Lon()-ox, ring[i].Lat()-oy
		x1, y1 := ring[(i+1)%n].Lon()-ox, ring[(i+1)%n].Lat()-oy
		cross := x0*y1 - x1*y0
		area += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	if math.Abs(area) < 1e-18 {
		var sx, sy float64
		for _, v := range ring {
			sx += v.Lon()
			sy += v.Lat()
		}
		return Point{Lat: sy / float64(n), Lon: sx / float64(n)}
	}
	area /= 2
	return Point{Lat: oy + cy/(6*area), Lon: ox + cx/(6*area)}
}

func insideRing(ring []domain.Position, p Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon(), ring[i].Lat()
		xj, yj := ring[j].Lon(), ring[j].Lat()
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func onRing(ring []domain.Position, p Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		if segmentDistance(p, ring[i], ring[(i+1)%n]) < 1e-12 {
			return true
		}
	}
	return false
}

func distanceToRingsDeg(rings [][]domain.Position, p Point) float64 {
	min := math.Inf(1)
	for _, ring := range rings {
		n := len(ring)
		for i := 0; i < n; i++ {
			if d := segmentDistance(p, ring[i], ring[(i+1)%n]); d < min {
				min = d
			}
		}
	}
	return min
}

// segmentDistance is the planar distance in degrees from p to segment ab.
func segmentDistance(p Point, a, b domain.Position) float64 {
	ax, ay := a.Lon(), a.Lat()
	bx, by := b.Lon(), b.Lat()
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.Lon-ax, p.Lat-ay)
	}
	t := ((p.Lon-ax)*dx + (p.Lat-ay)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.Lon-(ax+t*dx), p.Lat-(ay+t*dy))
}
