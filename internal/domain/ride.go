package domain

import "time"

// RideState represents the current state of a ride.
type RideState string

const (
	// RideStatePending only guards unlock contention; no ride rests in it.
	RideStatePending  RideState = "pending"
	RideStateActive   RideState = "active"
	RideStateEnded    RideState = "ended"
	RideStateBilled   RideState = "billed"
	RideStateRefunded RideState = "refunded"
)

// Open reports whether the state occupies the bike and the rider.
func (s RideState) Open() bool {
	switch s {
	case RideStatePending, RideStateActive:
		return true
	case RideStateEnded, RideStateBilled, RideStateRefunded:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s RideState) CanTransitionTo(next RideState) bool {
	switch s {
	case RideStatePending:
		return next == RideStateActive
	case RideStateActive:
		return next == RideStateEnded
	case RideStateEnded:
		return next == RideStateBilled || next == RideStateRefunded
	case RideStateBilled:
		return next == RideStateRefunded
	case RideStateRefunded:
		return false
	default:
		return false
	}
}

// Position is a coordinate pair in GeoJSON order: longitude, latitude.
type Position [2]float64

// NewPosition builds a Position from latitude and longitude.
func NewPosition(lat, lon float64) Position {
	return Position{lon, lat}
}

// Lat returns the latitude component.
func (p Position) Lat() float64 { return p[1] }

// Lon returns the longitude component.
func (p Position) Lon() float64 { return p[0] }

// Ride represents a single bike rental from unlock to settlement.
type Ride struct {
	ID     string
	UserID string // empty when the ride has no owning user
	BikeID string
	State  RideState

	StartedAt time.Time
	EndedAt   time.Time

	Meters       float64
	Seconds      int
	CaloriesKcal float64
	FareCents    int64

	PricingVersion         int
	DynamicMultiplierStart float64
	DynamicMultiplierEnd   float64

	Polyline        []Position // append-only while active
	UnlockToken     string
	LastTelemetryAt time.Time
	CreatedAt       time.Time
}

// LastPosition returns the most recent polyline point, if any.
func (r *Ride) LastPosition() (Position, bool) {
	if len(r.Polyline) == 0 {
		return Position{}, false
	}
	return r.Polyline[len(r.Polyline)-1], true
}

// Clone returns a deep copy so stored rides are never aliased.
func (r *Ride) Clone() *Ride {
	c := *r
	c.Polyline = append([]Position(nil), r.Polyline...)
	return &c
}
