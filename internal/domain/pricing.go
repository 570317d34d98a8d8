package domain

import "time"

// PricingPlan is a versioned fare formula. Exactly one plan is active at a time.
type PricingPlan struct {
	ID              string
	Name            string
	BaseCents       int64
	PerMinCents     int64
	PerKmCents      int64
	SurgeMultiplier float64
	Version         int
	IsActive        bool
	CreatedAt       time.Time
}

// DynamicPricingConfig is the singleton record driving the dynamic multiplier.
type DynamicPricingConfig struct {
	Weather         string
	BaseMultiplier  float64
	DemandSlope     float64
	DemandThreshold int
	MinMultiplier   float64
	MaxMultiplier   float64
	UpdatedAt       time.Time
}

// DefaultDynamicPricingConfig returns the configuration used before any admin update.
func DefaultDynamicPricingConfig() DynamicPricingConfig {
	return DynamicPricingConfig{
		Weather:         "clear",
		BaseMultiplier:  1.0,
		DemandSlope:     0.02,
		DemandThreshold: 10,
		MinMultiplier:   0.7,
		MaxMultiplier:   2.0,
	}
}
