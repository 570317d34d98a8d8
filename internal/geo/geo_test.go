package geo

import (
	"math"
	"testing"

	"bikeshare/internal/domain"
)

func square(minLon, minLat, maxLon, maxLat float64) [][]domain.Position {
	return [][]domain.Position{{
		{minLon, minLat},
		{minLon, maxLat},
		{maxLon, maxLat},
		{maxLon, minLat},
		{minLon, minLat},
	}}
}

func testZones() []domain.GeoZone {
	return []domain.GeoZone{
		{Name: "lot", Kind: domain.ZoneKindParking, Rings: square(103.0000, 1.0000, 103.0010, 1.0010)},
		{Name: "plaza", Kind: domain.ZoneKindNoPark, Rings: square(103.0020, 1.0020, 103.0025, 1.0025)},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	zones := testZones()
	tests := []struct {
		name string
		p    Point
		want ParkingStatus
	}{
		{"inside parking", Point{Lat: 1.0005, Lon: 103.0005}, ParkingStatusParking},
		{"within buffer", Point{Lat: 1.00102, Lon: 103.0005}, ParkingStatusBoundary},
		{"far away", Point{Lat: 1.0030, Lon: 103.0005}, ParkingStatusOutside},
		{"no park", Point{Lat: 1.0022, Lon: 103.0022}, ParkingStatusNoPark},
		{"on parking edge", Point{Lat: 1.0010, Lon: 103.0005}, ParkingStatusBoundary},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.p, zones, 5); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_NoParkOverridesParking(t *testing.T) {
	t.Parallel()

	zones := []domain.GeoZone{
		{Kind: domain.ZoneKindParking, Rings: square(103.0, 1.0, 103.01, 1.01)},
		{Kind: domain.ZoneKindNoPark, Rings: square(103.004, 1.004, 103.006, 1.006)},
	}

	if got := Classify(Point{Lat: 1.005, Lon: 103.005}, zones, 5); got != ParkingStatusNoPark {
		t.Errorf("expected no_park, got %s", got)
	}
	if got := Classify(Point{Lat: 1.002, Lon: 103.002}, zones, 5); got != ParkingStatusParking {
		t.Errorf("expected parking, got %s", got)
	}
}

func TestClassify_ZeroBufferHasNoBoundary(t *testing.T) {
	t.Parallel()

	if got := Classify(Point{Lat: 1.00102, Lon: 103.0005}, testZones(), 0); got != ParkingStatusOutside {
		t.Errorf("expected outside, got %s", got)
	}
}

func TestContains_Hole(t *testing.T) {
	t.Parallel()

	rings := square(0, 0, 10, 10)
	rings = append(rings, square(4, 4, 6, 6)[0])

	if !Contains(rings, Point{Lat: 2, Lon: 2}) {
		t.Error("point in ring body should be contained")
	}
	if Contains(rings, Point{Lat: 5, Lon: 5}) {
		t.Error("point in hole should not be contained")
	}
	if Contains(rings, Point{Lat: 0, Lon: 5}) {
		t.Error("point on exterior edge should not be contained")
	}
}

func TestNearestZoneCentroid(t *testing.T) {
	t.Parallel()

	c, ok := NearestZoneCentroid(Point{Lat: 1.0022, Lon: 103.0022}, testZones(), domain.ZoneKindParking)
	if !ok {
		t.Fatal("expected a parking centroid")
	}
	if math.Abs(c.Lat-1.0005) > 1e-7 || math.Abs(c.Lon-103.0005) > 1e-7 {
		t.Errorf("centroid = %+v, want (1.0005, 103.0005)", c)
	}

	if _, ok := NearestZoneCentroid(Point{}, testZones(), domain.ZoneKindSlowZone); ok {
		t.Error("expected no slow zone centroid")
	}
}

func TestHaversineM(t *testing.T) {
	t.Parallel()

	d := HaversineM(Point{Lat: 1.0, Lon: 103.0}, Point{Lat: 1.0, Lon: 103.001})
	if d < 110 || d > 112 {
		t.Errorf("expected ~111m, got %.2f", d)
	}
	if HaversineM(Point{Lat: 1, Lon: 1}, Point{Lat: 1, Lon: 1}) != 0 {
		t.Error("distance to self should be zero")
	}
}
