// Package notify delivers best-effort side notifications outside the request
// transaction: battery service webhooks, the Kafka event stream and the log.
package notify

import "time"

// EventType names a domain event.
type EventType string

const (
	EventRideUnlocked      EventType = "ride.unlocked"
	EventRideTelemetry     EventType = "ride.telemetry"
	EventRideLocked        EventType = "ride.locked"
	EventLockRejected      EventType = "ride.lock_rejected"
	EventPaymentAuthorized EventType = "payment.authorized"
	EventPaymentCaptured   EventType = "payment.captured"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventPricingUpdated    EventType = "pricing.config_updated"
	EventBikeLowBattery    EventType = "bike.low_battery"
)

// Event is a committed fact published to the sinks.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	RideID     string         `json:"ride_id,omitempty"`
	BikeID     string         `json:"bike_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}
