package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// BikeRepository defines the persistence operations for bikes.
type BikeRepository interface {
	// Create persists a new bike.
	Create(ctx context.Context, bike *domain.Bike) error

	// GetByID retrieves a bike by ID.
	GetByID(ctx context.Context, id string) (*domain.Bike, error)

	// GetByIDForUpdate retrieves and locks a bike by ID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Bike, error)

	// GetByQRForUpdate retrieves and locks a bike by its public QR id.
	GetByQRForUpdate(ctx context.Context, qr string) (*domain.Bike, error)

	// List retrieves all bikes ordered by QR id.
	List(ctx context.Context) ([]*domain.Bike, error)

	// Update updates an existing bike.
	Update(ctx context.Context, bike *domain.Bike) error
}
