// Package seed loads the demo fleet: users, pricing plans, bikes and
// geofence zones around central Singapore.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

// Demo accounts.
const (
	AdminEmail    = "admin@demo"
	AdminPassword = "admin123"
	UserEmail     = "user@demo"
	UserPassword  = "user123"
)

// BikeCount is the size of the demo fleet.
const BikeCount = 60

var anchors = [][2]float64{
	{1.305, 103.831}, // Orchard
	{1.352, 103.943}, // Changi
	{1.280, 103.850}, // CBD / Marina
	{1.340, 103.697}, // Jurong
	{1.404, 103.902}, // Punggol
	{1.312, 103.763}, // Bukit Timah
	{1.296, 103.790}, // Botanic Gardens
	{1.367, 103.848}, // Bishan
	{1.318, 103.892}, // Geylang
	{1.443, 103.785}, // Woodlands
}

// Zones returns the demo geofences.
func Zones() []domain.GeoZone {
	return []domain.GeoZone{
		{Name: "Raffles Place Parking", Kind: domain.ZoneKindParking, Rings: square(103.845, 1.296, 103.848, 1.299)},
		{Name: "Marina Bay Parking", Kind: domain.ZoneKindParking, Rings: square(103.856, 1.286, 103.859, 1.289)},
		{Name: "Merlion No-Park", Kind: domain.ZoneKindNoPark, Rings: square(103.852, 1.286, 103.853, 1.2875)},
		{Name: "Boat Quay Slow Zone", Kind: domain.ZoneKindSlowZone, Rings: square(103.848, 1.287, 103.851, 1.290)},
	}
}

// Plans returns the demo pricing plans. Flat v1 is active.
func Plans() []domain.PricingPlan {
	return []domain.PricingPlan{
		{Name: "Flat", BaseCents: 100, PerMinCents: 20, PerKmCents: 60, SurgeMultiplier: 1.0, Version: 1, IsActive: true},
		{Name: "Surge", BaseCents: 80, PerMinCents: 30, PerKmCents: 90, SurgeMultiplier: 1.4, Version: 2, IsActive: false},
	}
}

// Demo inserts whatever part of the demo data set is missing. rng places
// bikes around the anchors; pass a seeded source for reproducible fleets.
func Demo(ctx context.Context, store repository.Store, rng *rand.Rand, logger *slog.Logger) error {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
	}
	now := time.Now().UTC()

	return store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		users, err := seedUsers(ctx, tx, now)
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		plans, err := seedPlans(ctx, tx, now)
		if err != nil {
			return fmt.Errorf("seed plans: %w", err)
		}
		bikes, err := seedBikes(ctx, tx, rng, now)
		if err != nil {
			return fmt.Errorf("seed bikes: %w", err)
		}
		zones, err := seedZones(ctx, tx, now)
		if err != nil {
			return fmt.Errorf("seed zones: %w", err)
		}

		logger.Info("demo data seeded",
			slog.Int("users", users),
			slog.Int("plans", plans),
			slog.Int("bikes", bikes),
			slog.Int("zones", zones),
		)
		return nil
	})
}

func seedUsers(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	demo := []struct {
		user     domain.User
		password string
	}{
		{domain.User{Email: AdminEmail, Role: domain.RoleAdmin, WeightKg: 70}, AdminPassword},
		{domain.User{Email: UserEmail, Role: domain.RoleUser, WeightKg: 65}, UserPassword},
	}
	created := 0
	for _, d := range demo {
		u := d.user
		_, err := tx.Users().GetByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(d.password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		u.ID = uuid.New().String()
		u.PasswordHash = string(hash)
		u.CreatedAt = now
		if err := tx.Users().Create(ctx, &u); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func seedPlans(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	existing, err := tx.Plans().List(ctx)
	if err != nil || len(existing) > 0 {
		return 0, err
	}
	for _, p := range Plans() {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		if err := tx.Plans().Create(ctx, &p); err != nil {
			return 0, err
		}
	}
	return len(Plans()), nil
}

func seedBikes(ctx context.Context, tx repository.Tx, rng *rand.Rand, now time.Time) (int, error) {
	existing, err := tx.Bikes().List(ctx)
	if err != nil || len(existing) >= BikeCount {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, b := range existing {
		have[b.QRPublicID] = true
	}

	created := 0
	for i := 0; i < BikeCount; i++ {
		qr := fmt.Sprintf("SG-BIKE-%03d", i)
		if have[qr] {
			continue
		}
		anchor := anchors[rng.IntN(len(anchors))]
		b := &domain.Bike{
			ID:             uuid.New().String(),
			QRPublicID:     qr,
			LockState:      domain.BikeLockStateLocked,
			Status:         domain.BikeStatusOK,
			Lat:            round6(anchor[0] + jitter(rng, 0.015)),
			Lon:            round6(anchor[1] + jitter(rng, 0.02)),
			BatteryPct:     40 + rng.IntN(61),
			LastReportedAt: now,
		}
		if err := tx.Bikes().Create(ctx, b); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func seedZones(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	existing, err := tx.Zones().List(ctx)
	if err != nil || len(existing) > 0 {
		return 0, err
	}
	for _, z := range Zones() {
		z.ID = uuid.New().String()
		z.CreatedAt = now
		if err := tx.Zones().Create(ctx, &z); err != nil {
			return 0, err
		}
	}
	return len(Zones()), nil
}

func square(minLon, minLat, maxLon, maxLat float64) [][]domain.Position {
	return [][]domain.Position{{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}}
}

func jitter(rng *rand.Rand, deg float64) float64 {
	return (rng.Float64() - 0.5) * deg
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
