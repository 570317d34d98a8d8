package repository

import "context"

// Tx exposes the repositories bound to one transaction. Every *ForUpdate read
// holds an exclusive row lock until the transaction ends.
type Tx interface {
	Bikes() BikeRepository
	Rides() RideRepository
	Users() UserRepository
	Plans() PlanRepository
	PricingConfig() PricingConfigRepository
	Payments() PaymentRepository
	Zones() ZoneRepository
	Idempotency() IdempotencyRepository
	Maintenance() MaintenanceRepository
}

// Store runs work atomically. If fn returns an error, or ctx is cancelled
// before commit, every write made through tx is discarded.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
