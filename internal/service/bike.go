package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"bikeshare/internal/domain"
	"bikeshare/internal/geo"
	"bikeshare/internal/notify"
	"bikeshare/internal/repository"
)

// NearQuery restricts a bike listing to a radius around a point.
type NearQuery struct {
	Lat     float64
	Lon     float64
	RadiusM float64
}

// BikePatch is an admin edit; nil fields are left unchanged.
type BikePatch struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Status     *string  `json:"status"`
	BatteryPct *int     `json:"battery_pct"`
}

// LowBatteryNotice is sent by the battery service when a bike drains.
type LowBatteryNotice struct {
	BikeID     string  `json:"bike_id"`
	BatteryPct float64 `json:"battery_pct"`
	Threshold  float64 `json:"threshold"`
}

// BikeService serves the fleet: listings, admin edits and battery alerts.
type BikeService struct {
	store     repository.Store
	locations LocationIndex
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewBikeService creates a new BikeService. locations may be nil.
func NewBikeService(store repository.Store, locations LocationIndex, notifier Notifier, logger *slog.Logger) *BikeService {
	return &BikeService{
		store:     store,
		locations: locations,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "fleet")),
		now:       time.Now,
	}
}

// List returns bikes ordered by QR id, or nearest first when near is set.
// Without a location index the near filter is computed from stored positions.
func (s *BikeService) List(ctx context.Context, near *NearQuery) ([]BikeView, error) {
	if near != nil {
		if !validLocation(near.Lat, near.Lon) || near.RadiusM <= 0 {
			return nil, ErrInvalidLocation
		}
	}

	var bikes []*domain.Bike
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		bikes, err = tx.Bikes().List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if near == nil {
		return bikeViews(bikes), nil
	}
	if s.locations != nil {
		hits, err := s.locations.FindNearbyBikes(ctx, near.Lat, near.Lon, near.RadiusM)
		if err == nil {
			return orderByHits(bikes, hits), nil
		}
		s.logger.Warn("location index query failed, scanning stored positions", slog.Any("error", err))
	}
	return filterNear(bikes, *near), nil
}

// Get returns a bike by ID.
func (s *BikeService) Get(ctx context.Context, bikeID string) (*BikeView, error) {
	var view BikeView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Bikes().GetByID(ctx, bikeID)
		if err != nil {
			return err
		}
		view = NewBikeView(b)
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrBikeNotFound)
	}
	return &view, nil
}

// Patch applies an admin edit to a bike.
func (s *BikeService) Patch(ctx context.Context, principal domain.Principal, bikeID string, patch BikePatch) (*BikeView, error) {
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}

	var status domain.BikeStatus
	if patch.Status != nil {
		var err error
		status, err = domain.ParseBikeStatus(strings.ToLower(strings.TrimSpace(*patch.Status)))
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrBadRequest)
		}
	}
	if patch.BatteryPct != nil && (*patch.BatteryPct < 0 || *patch.BatteryPct > 100) {
		return nil, fmt.Errorf("battery_pct out of range: %w", ErrBadRequest)
	}

	var view BikeView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Bikes().GetByIDForUpdate(ctx, bikeID)
		if err != nil {
			return translate(err, ErrBikeNotFound)
		}

		lat, lon := b.Lat, b.Lon
		if patch.Lat != nil {
			lat = *patch.Lat
		}
		if patch.Lon != nil {
			lon = *patch.Lon
		}
		if !validLocation(lat, lon) {
			return ErrInvalidLocation
		}
		b.Lat, b.Lon = lat, lon
		if patch.Status != nil {
			b.Status = status
		}
		if patch.BatteryPct != nil {
			b.BatteryPct = *patch.BatteryPct
		}

		if err := tx.Bikes().Update(ctx, b); err != nil {
			return err
		}
		view = NewBikeView(b)
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrBikeNotFound)
	}

	s.logger.Info("bike updated", slog.String("bike_id", bikeID), slog.String("actor", principal.UserID))
	indexLocation(ctx, s.locations, s.logger, view.ID, view.Lat, view.Lon)
	return &view, nil
}

// LowBattery takes a drained bike out of service and opens a maintenance task.
func (s *BikeService) LowBattery(ctx context.Context, notice LowBatteryNotice) error {
	if notice.BatteryPct < 0 || notice.BatteryPct > 100 {
		return fmt.Errorf("battery_pct out of range: %w", ErrBadRequest)
	}

	var task *domain.MaintenanceTask
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Bikes().GetByIDForUpdate(ctx, notice.BikeID)
		if err != nil {
			return translate(err, ErrBikeNotFound)
		}

		b.BatteryPct = int(math.Round(notice.BatteryPct))
		b.Status = domain.BikeStatusMaintenance
		if err := tx.Bikes().Update(ctx, b); err != nil {
			return err
		}

		task = &domain.MaintenanceTask{
			ID:        uuid.New().String(),
			BikeID:    b.ID,
			Status:    domain.MaintenanceStatusTodo,
			Note:      fmt.Sprintf("Battery below %g%% (reported %g%%)", notice.Threshold, notice.BatteryPct),
			CreatedAt: s.now().UTC(),
		}
		return tx.Maintenance().Create(ctx, task)
	})
	if err != nil {
		return translate(err, ErrBikeNotFound)
	}

	s.logger.Warn("bike moved to maintenance",
		slog.String("bike_id", notice.BikeID),
		slog.Float64("battery_pct", notice.BatteryPct),
		slog.String("task_id", task.ID),
	)
	s.notifier.Enqueue(notify.Event{
		Type:   notify.EventBikeLowBattery,
		BikeID: notice.BikeID,
		Payload: map[string]any{
			"battery_pct": notice.BatteryPct,
			"threshold":   notice.Threshold,
			"task_id":     task.ID,
		},
	})
	return nil
}

func bikeViews(bikes []*domain.Bike) []BikeView {
	views := make([]BikeView, 0, len(bikes))
	for _, b := range bikes {
		views = append(views, NewBikeView(b))
	}
	return views
}

func orderByHits(bikes []*domain.Bike, hits []NearbyBike) []BikeView {
	byID := make(map[string]*domain.Bike, len(bikes))
	for _, b := range bikes {
		byID[b.ID] = b
	}
	views := make([]BikeView, 0, len(hits))
	for _, h := range hits {
		if b, ok := byID[h.BikeID]; ok {
			views = append(views, NewBikeView(b))
		}
	}
	return views
}

func filterNear(bikes []*domain.Bike, near NearQuery) []BikeView {
	center := geo.Point{Lat: near.Lat, Lon: near.Lon}
	type hit struct {
		bike *domain.Bike
		d    float64
	}
	var hits []hit
	for _, b := range bikes {
		if d := geo.HaversineM(center, geo.Point{Lat: b.Lat, Lon: b.Lon}); d <= near.RadiusM {
			hits = append(hits, hit{bike: b, d: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })

	views := make([]BikeView, 0, len(hits))
	for _, h := range hits {
		views = append(views, NewBikeView(h.bike))
	}
	return views
}
