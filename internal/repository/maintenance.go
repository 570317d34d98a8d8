package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// MaintenanceRepository records maintenance tasks.
type MaintenanceRepository interface {
	Create(ctx context.Context, task *domain.MaintenanceTask) error
	ListByBike(ctx context.Context, bikeID string) ([]*domain.MaintenanceTask, error)
}
