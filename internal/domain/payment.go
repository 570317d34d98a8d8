package domain

import "time"

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment represents the charge for a ride. Each ride has at most one.
type Payment struct {
	ID             string
	RideID         string
	AmountCents    int64
	Status         PaymentStatus
	IdempotencyKey string
	PSPReference   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CapturedAt     time.Time
	RefundedAt     time.Time
}

// PaymentSummary aggregates captured payments.
type PaymentSummary struct {
	CapturedCents int64
	CapturedCount int
}
