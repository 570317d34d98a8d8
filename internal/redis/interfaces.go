package redis

import (
	"context"

	"bikeshare/internal/domain"
	"bikeshare/internal/idempotency"
)

// LocationStoreInterface defines the interface for bike location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, bikeID string, lat, lon float64) error
	FindNearbyBikes(ctx context.Context, lat, lon, radiusM float64) ([]BikeLocation, error)
	RemoveLocation(ctx context.Context, bikeID string) error
}

// ReplayCacheInterface is the idempotency replay cache contract.
type ReplayCacheInterface interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Put(ctx context.Context, rec *domain.IdempotencyRecord) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ ReplayCacheInterface   = (*ReplayCache)(nil)
	_ idempotency.Cache      = (*ReplayCache)(nil)
)
