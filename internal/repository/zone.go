package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// ZoneRepository defines the persistence operations for geofence zones.
type ZoneRepository interface {
	Create(ctx context.Context, zone *domain.GeoZone) error
	List(ctx context.Context) ([]domain.GeoZone, error)
}
