package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment. Returns ErrDuplicate if the ride already has one.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByIDForUpdate retrieves and locks a payment by ID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error)

	// GetByRideIDForUpdate retrieves and locks the payment of a ride.
	GetByRideIDForUpdate(ctx context.Context, rideID string) (*domain.Payment, error)

	// Update updates an existing payment.
	Update(ctx context.Context, payment *domain.Payment) error

	// Summary aggregates captured payments.
	Summary(ctx context.Context) (domain.PaymentSummary, error)
}
