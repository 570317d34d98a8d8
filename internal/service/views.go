package service

import (
	"time"

	"bikeshare/internal/domain"
	"bikeshare/internal/routing"
)

// LineString is a GeoJSON LineString of [lon, lat] pairs.
type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

func newLineString(points []domain.Position) LineString {
	coords := make([][2]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, [2]float64(p))
	}
	return LineString{Type: "LineString", Coordinates: coords}
}

// RideView is the wire representation of a ride.
type RideView struct {
	ID                     string     `json:"id"`
	UserID                 *string    `json:"user_id"`
	BikeID                 string     `json:"bike_id"`
	State                  string     `json:"state"`
	StartedAt              time.Time  `json:"started_at"`
	EndedAt                *time.Time `json:"ended_at"`
	Meters                 float64    `json:"meters"`
	Seconds                int        `json:"seconds"`
	CaloriesKcal           float64    `json:"calories_kcal"`
	FareCents              int64      `json:"fare_cents"`
	PricingVersion         int        `json:"pricing_version"`
	DynamicMultiplierStart float64    `json:"dynamic_multiplier_start"`
	DynamicMultiplierEnd   *float64   `json:"dynamic_multiplier_end"`
	Polyline               LineString `json:"polyline_geojson"`
}

// NewRideView converts a ride for the wire.
func NewRideView(r *domain.Ride) RideView {
	v := RideView{
		ID:                     r.ID,
		BikeID:                 r.BikeID,
		State:                  string(r.State),
		StartedAt:              r.StartedAt.UTC(),
		Meters:                 r.Meters,
		Seconds:                r.Seconds,
		CaloriesKcal:           r.CaloriesKcal,
		FareCents:              r.FareCents,
		PricingVersion:         r.PricingVersion,
		DynamicMultiplierStart: r.DynamicMultiplierStart,
		Polyline:               newLineString(r.Polyline),
	}
	if r.UserID != "" {
		id := r.UserID
		v.UserID = &id
	}
	if !r.EndedAt.IsZero() {
		t := r.EndedAt.UTC()
		v.EndedAt = &t
	}
	if r.DynamicMultiplierEnd != 0 {
		m := r.DynamicMultiplierEnd
		v.DynamicMultiplierEnd = &m
	}
	return v
}

// BikeView is the wire representation of a bike.
type BikeView struct {
	ID             string    `json:"id"`
	QRPublicID     string    `json:"qr_public_id"`
	LockState      string    `json:"lock_state"`
	Status         string    `json:"status"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	BatteryPct     int       `json:"battery_pct"`
	LastReportedAt time.Time `json:"last_reported_at"`
}

// NewBikeView converts a bike for the wire.
func NewBikeView(b *domain.Bike) BikeView {
	return BikeView{
		ID:             b.ID,
		QRPublicID:     b.QRPublicID,
		LockState:      string(b.LockState),
		Status:         string(b.Status),
		Lat:            b.Lat,
		Lon:            b.Lon,
		BatteryPct:     b.BatteryPct,
		LastReportedAt: b.LastReportedAt.UTC(),
	}
}

// PaymentView is the wire representation of a payment.
type PaymentView struct {
	ID             string     `json:"id"`
	RideID         string     `json:"ride_id"`
	AmountCents    int64      `json:"amount_cents"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
}

// NewPaymentView converts a payment for the wire.
func NewPaymentView(p *domain.Payment) PaymentView {
	v := PaymentView{
		ID:             p.ID,
		RideID:         p.RideID,
		AmountCents:    p.AmountCents,
		Status:         string(p.Status),
		IdempotencyKey: p.IdempotencyKey,
	}
	if !p.CapturedAt.IsZero() {
		t := p.CapturedAt.UTC()
		v.CapturedAt = &t
	}
	if !p.RefundedAt.IsZero() {
		t := p.RefundedAt.UTC()
		v.RefundedAt = &t
	}
	return v
}

// RouteView is a suggested or requested route.
type RouteView struct {
	Polyline  LineString `json:"polyline_geojson"`
	DistanceM float64    `json:"distance_m"`
	EstTimeS  float64    `json:"est_time_s"`
	Nodes     []string   `json:"nodes,omitempty"`
	StartNode string     `json:"start_node,omitempty"`
	EndNode   string     `json:"end_node,omitempty"`
}

func newRouteView(r *routing.Route, detailed bool) *RouteView {
	v := &RouteView{
		Polyline:  LineString{Type: "LineString", Coordinates: r.Polyline},
		DistanceM: r.DistanceM,
		EstTimeS:  r.EstTimeS,
	}
	if detailed {
		v.Nodes = r.Nodes
		v.StartNode = r.StartNode
		v.EndNode = r.EndNode
	}
	return v
}

// UnlockResponse is returned by a successful unlock.
type UnlockResponse struct {
	UnlockToken string   `json:"unlock_token"`
	Ride        RideView `json:"ride"`
	Bike        BikeView `json:"bike"`
}

// TelemetryResponse is returned after a telemetry sample is applied.
type TelemetryResponse struct {
	OK           bool    `json:"ok"`
	RideID       string  `json:"ride_id"`
	Meters       float64 `json:"meters"`
	Seconds      int     `json:"seconds"`
	CaloriesKcal float64 `json:"calories_kcal"`
	InSlowZone   bool    `json:"in_slow_zone"`
}

// LockResponse is returned by a successful lock.
type LockResponse struct {
	OK                  bool           `json:"ok"`
	ParkingStatus       string         `json:"parking_status"`
	Ride                RideView       `json:"ride"`
	Fare                *FareBreakdown `json:"fare"`
	NearestParkingRoute *RouteView     `json:"nearest_parking_route"`
}

// PaymentSummaryView aggregates captured payments.
type PaymentSummaryView struct {
	CapturedCents int64 `json:"captured_cents"`
	CapturedCount int   `json:"captured_count"`
}
