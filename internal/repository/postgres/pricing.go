package postgres

import (
	"context"
	"database/sql"

	"bikeshare/internal/domain"
)

// PlanRepository is a PostgreSQL implementation of repository.PlanRepository.
type PlanRepository struct {
	q Querier
}

// NewPlanRepositoryWithTx creates a plan repository using a transaction.
func NewPlanRepositoryWithTx(tx *sql.Tx) *PlanRepository {
	return &PlanRepository{q: tx}
}

const planColumns = `id, name, base_cents, per_min_cents, per_km_cents, surge_multiplier, version, is_active, created_at`

// Create persists a new plan.
func (r *PlanRepository) Create(ctx context.Context, plan *domain.PricingPlan) error {
	query := `INSERT INTO pricing_plans (` + planColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.ExecContext(ctx, query,
		plan.ID,
		plan.Name,
		plan.BaseCents,
		plan.PerMinCents,
		plan.PerKmCents,
		plan.SurgeMultiplier,
		plan.Version,
		plan.IsActive,
		plan.CreatedAt,
	)
	return mapWriteError(err)
}

// GetActive returns the active plan.
func (r *PlanRepository) GetActive(ctx context.Context) (*domain.PricingPlan, error) {
	return r.scanOne(ctx, `SELECT `+planColumns+` FROM pricing_plans WHERE is_active LIMIT 1`)
}

// GetByVersion returns the plan with the given version.
func (r *PlanRepository) GetByVersion(ctx context.Context, version int) (*domain.PricingPlan, error) {
	return r.scanOne(ctx, `SELECT `+planColumns+` FROM pricing_plans WHERE version = $1`, version)
}

// List returns all plans, newest first.
func (r *PlanRepository) List(ctx context.Context) ([]*domain.PricingPlan, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+planColumns+` FROM pricing_plans ORDER BY version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*domain.PricingPlan
	for rows.Next() {
		var p domain.PricingPlan
		if err := rows.Scan(
			&p.ID, &p.Name, &p.BaseCents, &p.PerMinCents, &p.PerKmCents,
			&p.SurgeMultiplier, &p.Version, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.PricingPlan, error) {
	var p domain.PricingPlan
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.Name, &p.BaseCents, &p.PerMinCents, &p.PerKmCents,
		&p.SurgeMultiplier, &p.Version, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &p, nil
}

// PricingConfigRepository is a PostgreSQL implementation of repository.PricingConfigRepository.
type PricingConfigRepository struct {
	q Querier
}

// NewPricingConfigRepositoryWithTx creates a pricing config repository using a transaction.
func NewPricingConfigRepositoryWithTx(tx *sql.Tx) *PricingConfigRepository {
	return &PricingConfigRepository{q: tx}
}

const configColumns = `weather, base_multiplier, demand_slope, demand_threshold, min_multiplier, max_multiplier, updated_at`

// Get returns the singleton config.
func (r *PricingConfigRepository) Get(ctx context.Context) (*domain.DynamicPricingConfig, error) {
	return r.scanOne(ctx, `SELECT `+configColumns+` FROM dynamic_pricing_config WHERE id = 1`)
}

// GetForUpdate returns and locks the singleton config.
func (r *PricingConfigRepository) GetForUpdate(ctx context.Context) (*domain.DynamicPricingConfig, error) {
	return r.scanOne(ctx, `SELECT `+configColumns+` FROM dynamic_pricing_config WHERE id = 1 FOR UPDATE`)
}

// Save upserts the singleton config.
func (r *PricingConfigRepository) Save(ctx context.Context, cfg *domain.DynamicPricingConfig) error {
	query := `
		INSERT INTO dynamic_pricing_config (id, ` + configColumns + `)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			weather = EXCLUDED.weather,
			base_multiplier = EXCLUDED.base_multiplier,
			demand_slope = EXCLUDED.demand_slope,
			demand_threshold = EXCLUDED.demand_threshold,
			min_multiplier = EXCLUDED.min_multiplier,
			max_multiplier = EXCLUDED.max_multiplier,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		cfg.Weather,
		cfg.BaseMultiplier,
		cfg.DemandSlope,
		cfg.DemandThreshold,
		cfg.MinMultiplier,
		cfg.MaxMultiplier,
		cfg.UpdatedAt,
	)
	return err
}

func (r *PricingConfigRepository) scanOne(ctx context.Context, query string) (*domain.DynamicPricingConfig, error) {
	var c domain.DynamicPricingConfig
	err := r.q.QueryRowContext(ctx, query).Scan(
		&c.Weather, &c.BaseMultiplier, &c.DemandSlope, &c.DemandThreshold,
		&c.MinMultiplier, &c.MaxMultiplier, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &c, nil
}
