package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// PlanRepository defines the persistence operations for pricing plans.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.PricingPlan) error

	// GetActive returns the single active plan, or ErrNotFound.
	GetActive(ctx context.Context) (*domain.PricingPlan, error)

	// GetByVersion returns the plan with the given version, or ErrNotFound.
	GetByVersion(ctx context.Context, version int) (*domain.PricingPlan, error)

	// List returns all plans, newest version first.
	List(ctx context.Context) ([]*domain.PricingPlan, error)
}

// PricingConfigRepository stores the singleton dynamic pricing record.
type PricingConfigRepository interface {
	// Get returns the config, or ErrNotFound when none was ever saved.
	Get(ctx context.Context) (*domain.DynamicPricingConfig, error)

	// GetForUpdate returns and locks the config.
	GetForUpdate(ctx context.Context) (*domain.DynamicPricingConfig, error)

	// Save upserts the config.
	Save(ctx context.Context, cfg *domain.DynamicPricingConfig) error
}
