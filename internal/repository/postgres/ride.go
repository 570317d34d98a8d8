package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, user_id, bike_id, state, started_at, ended_at, meters, seconds, calories_kcal, fare_cents,
	pricing_version, dynamic_multiplier_start, dynamic_multiplier_end, polyline, unlock_token, last_telemetry_at, created_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	polyline, err := encodePolyline(ride.Polyline)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, query,
		ride.ID,
		nullString(ride.UserID),
		ride.BikeID,
		ride.State,
		ride.StartedAt,
		nullTime(ride.EndedAt),
		ride.Meters,
		ride.Seconds,
		ride.CaloriesKcal,
		ride.FareCents,
		ride.PricingVersion,
		ride.DynamicMultiplierStart,
		nullFloat(ride.DynamicMultiplierEnd),
		polyline,
		ride.UnlockToken,
		nullTime(ride.LastTelemetryAt),
		ride.CreatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return r.scanOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves and locks a ride by ID.
func (r *RideRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.scanOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id)
}

// FindOpenByBike returns the open ride on a bike.
func (r *RideRepository) FindOpenByBike(ctx context.Context, bikeID string) (*domain.Ride, error) {
	return r.scanOne(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE bike_id = $1 AND state IN ('pending', 'active') LIMIT 1`,
		bikeID)
}

// FindOpenByUser returns the open ride of a user.
func (r *RideRepository) FindOpenByUser(ctx context.Context, userID string) (*domain.Ride, error) {
	return r.scanOne(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE user_id = $1 AND state IN ('pending', 'active') LIMIT 1`,
		userID)
}

// CountOpen counts rides in pending or active state.
func (r *RideRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides WHERE state IN ('pending', 'active')`).Scan(&n)
	return n, err
}

// Update updates an existing ride.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET state = $1, ended_at = $2, meters = $3, seconds = $4, calories_kcal = $5, fare_cents = $6,
			dynamic_multiplier_end = $7, polyline = $8, last_telemetry_at = $9
		WHERE id = $10
	`

	polyline, err := encodePolyline(ride.Polyline)
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, query,
		ride.State,
		nullTime(ride.EndedAt),
		ride.Meters,
		ride.Seconds,
		ride.CaloriesKcal,
		ride.FareCents,
		nullFloat(ride.DynamicMultiplierEnd),
		polyline,
		nullTime(ride.LastTelemetryAt),
		ride.ID,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(result)
}

func (r *RideRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Ride, error) {
	var (
		ride            domain.Ride
		userID          sql.NullString
		endedAt         sql.NullTime
		multiplierEnd   sql.NullFloat64
		polyline        []byte
		lastTelemetryAt sql.NullTime
	)

	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&ride.ID,
		&userID,
		&ride.BikeID,
		&ride.State,
		&ride.StartedAt,
		&endedAt,
		&ride.Meters,
		&ride.Seconds,
		&ride.CaloriesKcal,
		&ride.FareCents,
		&ride.PricingVersion,
		&ride.DynamicMultiplierStart,
		&multiplierEnd,
		&polyline,
		&ride.UnlockToken,
		&lastTelemetryAt,
		&ride.CreatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}

	if userID.Valid {
		ride.UserID = userID.String
	}
	if endedAt.Valid {
		ride.EndedAt = endedAt.Time
	}
	if multiplierEnd.Valid {
		ride.DynamicMultiplierEnd = multiplierEnd.Float64
	}
	if lastTelemetryAt.Valid {
		ride.LastTelemetryAt = lastTelemetryAt.Time
	}
	if err := json.Unmarshal(polyline, &ride.Polyline); err != nil {
		return nil, err
	}

	return &ride, nil
}

func encodePolyline(p []domain.Position) ([]byte, error) {
	if p == nil {
		p = []domain.Position{}
	}
	return json.Marshal(p)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

var _ repository.RideRepository = (*RideRepository)(nil)
