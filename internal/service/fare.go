package service

import (
	"fmt"
	"math"

	"bikeshare/internal/domain"
)

// RoundingMode selects how fractional cents are resolved.
type RoundingMode string

const (
	// RoundingBankers rounds half to even.
	RoundingBankers RoundingMode = "bankers"
	// RoundingCeil always rounds up.
	RoundingCeil RoundingMode = "ceil"
)

// ParseRoundingMode validates a raw rounding mode.
func ParseRoundingMode(raw string) (RoundingMode, error) {
	switch m := RoundingMode(raw); m {
	case RoundingBankers, RoundingCeil:
		return m, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", raw)
	}
}

func (m RoundingMode) apply(v float64) float64 {
	switch m {
	case RoundingCeil:
		return math.Ceil(v)
	case RoundingBankers:
		return math.RoundToEven(v)
	default:
		return math.RoundToEven(v)
	}
}

// FareBreakdown itemizes a fare.
type FareBreakdown struct {
	PlanVersion       int     `json:"plan_version"`
	BaseCents         float64 `json:"base_cents"`
	TimeCents         float64 `json:"time_cents"`
	DistanceCents     float64 `json:"distance_cents"`
	Subtotal          float64 `json:"subtotal_cents"`
	SurgeMultiplier   float64 `json:"surge_multiplier"`
	DynamicMultiplier float64 `json:"dynamic_multiplier"`
	TotalCents        int64   `json:"total_cents"`
}

// ComputeFare prices a ride:
// (base + per_min*minutes + per_km*km) * surge * dynamic, rounded, floored at zero.
func ComputeFare(plan *domain.PricingPlan, meters float64, seconds int, dynamic float64, mode RoundingMode) FareBreakdown {
	b := FareBreakdown{
		PlanVersion:       plan.Version,
		BaseCents:         float64(plan.BaseCents),
		TimeCents:         float64(plan.PerMinCents) * (float64(seconds) / 60.0),
		DistanceCents:     float64(plan.PerKmCents) * (meters / 1000.0),
		SurgeMultiplier:   plan.SurgeMultiplier,
		DynamicMultiplier: dynamic,
	}
	b.Subtotal = b.BaseCents + b.TimeCents + b.DistanceCents

	total := mode.apply(b.Subtotal * plan.SurgeMultiplier * dynamic)
	b.TotalCents = int64(math.Max(0, total))
	return b
}
