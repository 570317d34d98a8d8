package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"bikeshare/internal/domain"
	"bikeshare/internal/notify"
	"bikeshare/internal/repository"
)

var weatherFactors = map[string]float64{
	"clear": 1.0,
	"rain":  0.9,
	"storm": 0.8,
}

// WeatherFactor returns the demand adjustment for a weather label, 1.0 when unknown.
func WeatherFactor(weather string) float64 {
	if f, ok := weatherFactors[strings.ToLower(weather)]; ok {
		return f
	}
	return 1.0
}

// PricingSnapshot is the dynamic multiplier at one instant.
type PricingSnapshot struct {
	Multiplier    float64 `json:"multiplier"`
	Weather       string  `json:"weather"`
	WeatherFactor float64 `json:"weather_factor"`
	DemandFactor  float64 `json:"demand_factor"`
	ActiveRides   int     `json:"active_rides"`
}

// ComputeSnapshot derives the dynamic multiplier from config and open-ride demand.
func ComputeSnapshot(cfg domain.DynamicPricingConfig, activeRides int) PricingSnapshot {
	excess := math.Max(0, float64(activeRides-cfg.DemandThreshold))
	demand := 1.0 + cfg.DemandSlope*excess
	weather := WeatherFactor(cfg.Weather)

	m := cfg.BaseMultiplier * weather * demand
	m = math.Max(cfg.MinMultiplier, math.Min(cfg.MaxMultiplier, m))

	return PricingSnapshot{
		Multiplier:    m,
		Weather:       cfg.Weather,
		WeatherFactor: weather,
		DemandFactor:  demand,
		ActiveRides:   activeRides,
	}
}

// PricingConfigView is the wire representation of the dynamic pricing config.
type PricingConfigView struct {
	Weather           string     `json:"weather"`
	BaseMultiplier    float64    `json:"base_multiplier"`
	DemandSlope       float64    `json:"demand_slope"`
	DemandThreshold   int        `json:"demand_threshold"`
	MinMultiplier     float64    `json:"min_multiplier"`
	MaxMultiplier     float64    `json:"max_multiplier"`
	LastUpdatedAt     *time.Time `json:"last_updated_at"`
	CurrentMultiplier float64    `json:"current_multiplier"`
}

// PricingConfigUpdate is a partial update; nil fields are left unchanged.
type PricingConfigUpdate struct {
	Weather         *string  `json:"weather"`
	BaseMultiplier  *float64 `json:"base_multiplier"`
	DemandSlope     *float64 `json:"demand_slope"`
	DemandThreshold *int     `json:"demand_threshold"`
	MinMultiplier   *float64 `json:"min_multiplier"`
	MaxMultiplier   *float64 `json:"max_multiplier"`
}

// PlanView is the wire representation of a pricing plan.
type PlanView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BaseCents       int64   `json:"base_cents"`
	PerMinCents     int64   `json:"per_min_cents"`
	PerKmCents      int64   `json:"per_km_cents"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Version         int     `json:"version"`
	IsActive        bool    `json:"is_active"`
}

// PricingService owns the dynamic pricing config and its snapshots.
type PricingService struct {
	store    repository.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPricingService creates a new PricingService.
func NewPricingService(store repository.Store, notifier Notifier, logger *slog.Logger) *PricingService {
	return &PricingService{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "pricing")),
		now:      time.Now,
	}
}

// config returns the stored config, or the defaults when none was saved.
func (s *PricingService) config(ctx context.Context, tx repository.Tx) (domain.DynamicPricingConfig, error) {
	cfg, err := tx.PricingConfig().Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.DefaultDynamicPricingConfig(), nil
	}
	if err != nil {
		return domain.DynamicPricingConfig{}, err
	}
	return *cfg, nil
}

// Snapshot computes the multiplier from within an open transaction.
func (s *PricingService) Snapshot(ctx context.Context, tx repository.Tx) (PricingSnapshot, error) {
	cfg, err := s.config(ctx, tx)
	if err != nil {
		return PricingSnapshot{}, err
	}
	active, err := tx.Rides().CountOpen(ctx)
	if err != nil {
		return PricingSnapshot{}, err
	}
	return ComputeSnapshot(cfg, active), nil
}

// Current computes the multiplier as of now.
func (s *PricingService) Current(ctx context.Context) (PricingSnapshot, error) {
	var snap PricingSnapshot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		snap, err = s.Snapshot(ctx, tx)
		return err
	})
	return snap, err
}

// GetConfig returns the config and the multiplier it currently yields.
func (s *PricingService) GetConfig(ctx context.Context) (*PricingConfigView, error) {
	var view *PricingConfigView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cfg, err := s.config(ctx, tx)
		if err != nil {
			return err
		}
		view, err = s.configView(ctx, tx, cfg)
		return err
	})
	return view, err
}

// UpdateConfig applies a partial update. Only admins may change pricing.
func (s *PricingService) UpdateConfig(ctx context.Context, principal domain.Principal, upd PricingConfigUpdate) (*PricingConfigView, error) {
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}

	var (
		view    *PricingConfigView
		changes = map[string]any{}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		stored, err := tx.PricingConfig().GetForUpdate(ctx)
		cfg := domain.DefaultDynamicPricingConfig()
		switch {
		case err == nil:
			cfg = *stored
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		applyConfigUpdate(&cfg, upd, changes)
		if err := validateConfig(cfg); err != nil {
			return err
		}
		cfg.UpdatedAt = s.now().UTC()

		if err := tx.PricingConfig().Save(ctx, &cfg); err != nil {
			return err
		}
		view, err = s.configView(ctx, tx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.logger.Info("dynamic pricing config updated",
			slog.String("actor", principal.UserID),
			slog.Any("changes", changes),
			slog.Float64("current_multiplier", view.CurrentMultiplier),
		)
		s.notifier.Enqueue(notify.Event{
			Type: notify.EventPricingUpdated,
			Payload: map[string]any{
				"changes":            changes,
				"current_multiplier": view.CurrentMultiplier,
			},
		})
	}
	return view, nil
}

// Plans lists every pricing plan, newest first.
func (s *PricingService) Plans(ctx context.Context) ([]PlanView, error) {
	var views []PlanView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		plans, err := tx.Plans().List(ctx)
		if err != nil {
			return err
		}
		views = make([]PlanView, 0, len(plans))
		for _, p := range plans {
			views = append(views, PlanView{
				ID:              p.ID,
				Name:            p.Name,
				BaseCents:       p.BaseCents,
				PerMinCents:     p.PerMinCents,
				PerKmCents:      p.PerKmCents,
				SurgeMultiplier: p.SurgeMultiplier,
				Version:         p.Version,
				IsActive:        p.IsActive,
			})
		}
		return nil
	})
	return views, err
}

func (s *PricingService) configView(ctx context.Context, tx repository.Tx, cfg domain.DynamicPricingConfig) (*PricingConfigView, error) {
	active, err := tx.Rides().CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	v := &PricingConfigView{
		Weather:           cfg.Weather,
		BaseMultiplier:    cfg.BaseMultiplier,
		DemandSlope:       cfg.DemandSlope,
		DemandThreshold:   cfg.DemandThreshold,
		MinMultiplier:     cfg.MinMultiplier,
		MaxMultiplier:     cfg.MaxMultiplier,
		CurrentMultiplier: ComputeSnapshot(cfg, active).Multiplier,
	}
	if !cfg.UpdatedAt.IsZero() {
		t := cfg.UpdatedAt.UTC()
		v.LastUpdatedAt = &t
	}
	return v, nil
}

func applyConfigUpdate(cfg *domain.DynamicPricingConfig, upd PricingConfigUpdate, changes map[string]any) {
	if upd.Weather != nil {
		cfg.Weather = strings.ToLower(strings.TrimSpace(*upd.Weather))
		changes["weather"] = cfg.Weather
	}
	if upd.BaseMultiplier != nil {
		cfg.BaseMultiplier = *upd.BaseMultiplier
		changes["base_multiplier"] = cfg.BaseMultiplier
	}
	if upd.DemandSlope != nil {
		cfg.DemandSlope = *upd.DemandSlope
		changes["demand_slope"] = cfg.DemandSlope
	}
	if upd.DemandThreshold != nil {
		cfg.DemandThreshold = *upd.DemandThreshold
		changes["demand_threshold"] = cfg.DemandThreshold
	}
	if upd.MinMultiplier != nil {
		cfg.MinMultiplier = *upd.MinMultiplier
		changes["min_multiplier"] = cfg.MinMultiplier
	}
	if upd.MaxMultiplier != nil {
		cfg.MaxMultiplier = *upd.MaxMultiplier
		changes["max_multiplier"] = cfg.MaxMultiplier
	}
}

func validateConfig(cfg domain.DynamicPricingConfig) error {
	switch {
	case cfg.Weather == "":
		return ErrInvalidPricingConfig
	case cfg.BaseMultiplier <= 0, cfg.MinMultiplier <= 0:
		return ErrInvalidPricingConfig
	case cfg.MaxMultiplier < cfg.MinMultiplier:
		return ErrInvalidPricingConfig
	case cfg.DemandSlope < 0, cfg.DemandThreshold < 0:
		return ErrInvalidPricingConfig
	}
	return nil
}
