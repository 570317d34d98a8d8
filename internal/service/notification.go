package service

import (
	"context"
	"log/slog"

	"bikeshare/internal/notify"
)

// Notifier accepts committed domain events for asynchronous delivery.
// Enqueue must not block.
type Notifier interface {
	Enqueue(evt notify.Event)
}

// LocationIndex mirrors last known bike positions for proximity search.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, bikeID string, lat, lon float64) error
	FindNearbyBikes(ctx context.Context, lat, lon, radiusM float64) ([]NearbyBike, error)
}

// NearbyBike is one proximity search hit.
type NearbyBike struct {
	BikeID    string
	DistanceM float64
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Enqueue(notify.Event) {}

// indexLocation pushes a bike position to the index. Failures only log: the
// database stays authoritative and the next update repairs the index.
func indexLocation(ctx context.Context, index LocationIndex, logger *slog.Logger, bikeID string, lat, lon float64) {
	if index == nil {
		return
	}
	if err := index.UpdateLocation(ctx, bikeID, lat, lon); err != nil {
		logger.Warn("bike location index update failed",
			slog.String("bike_id", bikeID),
			slog.Any("error", err),
		)
	}
}
