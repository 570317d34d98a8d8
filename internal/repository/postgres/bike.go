package postgres

import (
	"context"
	"database/sql"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

// BikeRepository is a PostgreSQL implementation of repository.BikeRepository.
type BikeRepository struct {
	q Querier
}

// NewBikeRepositoryWithTx creates a bike repository using a transaction.
func NewBikeRepositoryWithTx(tx *sql.Tx) *BikeRepository {
	return &BikeRepository{q: tx}
}

const bikeColumns = `id, qr_public_id, lock_state, status, lat, lon, battery_pct, last_reported_at`

// Create persists a new bike.
func (r *BikeRepository) Create(ctx context.Context, bike *domain.Bike) error {
	query := `
		INSERT INTO bikes (` + bikeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		bike.ID,
		bike.QRPublicID,
		bike.LockState,
		bike.Status,
		bike.Lat,
		bike.Lon,
		bike.BatteryPct,
		bike.LastReportedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a bike by ID.
func (r *BikeRepository) GetByID(ctx context.Context, id string) (*domain.Bike, error) {
	return r.scanOne(ctx, `SELECT `+bikeColumns+` FROM bikes WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves and locks a bike by ID.
func (r *BikeRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Bike, error) {
	return r.scanOne(ctx, `SELECT `+bikeColumns+` FROM bikes WHERE id = $1 FOR UPDATE`, id)
}

// GetByQRForUpdate retrieves and locks a bike by QR id.
func (r *BikeRepository) GetByQRForUpdate(ctx context.Context, qr string) (*domain.Bike, error) {
	return r.scanOne(ctx, `SELECT `+bikeColumns+` FROM bikes WHERE qr_public_id = $1 FOR UPDATE`, qr)
}

// List retrieves all bikes.
func (r *BikeRepository) List(ctx context.Context) ([]*domain.Bike, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+bikeColumns+` FROM bikes ORDER BY qr_public_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bikes []*domain.Bike
	for rows.Next() {
		var bike domain.Bike
		if err := rows.Scan(
			&bike.ID,
			&bike.QRPublicID,
			&bike.LockState,
			&bike.Status,
			&bike.Lat,
			&bike.Lon,
			&bike.BatteryPct,
			&bike.LastReportedAt,
		); err != nil {
			return nil, err
		}
		bikes = append(bikes, &bike)
	}
	return bikes, rows.Err()
}

// Update updates an existing bike.
func (r *BikeRepository) Update(ctx context.Context, bike *domain.Bike) error {
	query := `
		UPDATE bikes
		SET lock_state = $1, status = $2, lat = $3, lon = $4, battery_pct = $5, last_reported_at = $6
		WHERE id = $7
	`
	result, err := r.q.ExecContext(ctx, query,
		bike.LockState,
		bike.Status,
		bike.Lat,
		bike.Lon,
		bike.BatteryPct,
		bike.LastReportedAt,
		bike.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *BikeRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Bike, error) {
	var bike domain.Bike
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&bike.ID,
		&bike.QRPublicID,
		&bike.LockState,
		&bike.Status,
		&bike.Lat,
		&bike.Lon,
		&bike.BatteryPct,
		&bike.LastReportedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &bike, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
