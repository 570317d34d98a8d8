package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate if the bike or user
	// already has an open ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetByIDForUpdate retrieves and locks a ride by ID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// FindOpenByBike returns the pending or active ride on a bike, or ErrNotFound.
	FindOpenByBike(ctx context.Context, bikeID string) (*domain.Ride, error)

	// FindOpenByUser returns the pending or active ride of a user, or ErrNotFound.
	FindOpenByUser(ctx context.Context, userID string) (*domain.Ride, error)

	// CountOpen counts rides in pending or active state.
	CountOpen(ctx context.Context) (int, error)

	// Update updates an existing ride.
	Update(ctx context.Context, ride *domain.Ride) error
}
