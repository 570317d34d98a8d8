package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"bikeshare/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier          = (*sql.DB)(nil)
	_ Querier          = (*sql.Tx)(nil)
	_ repository.Store = (*Store)(nil)
)

// Store is a PostgreSQL implementation of repository.Store. Row locks are
// taken with SELECT ... FOR UPDATE and released on commit or rollback.
type Store struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a single database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &txRepositories{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

type txRepositories struct {
	tx *sql.Tx
}

func (t *txRepositories) Bikes() repository.BikeRepository { return NewBikeRepositoryWithTx(t.tx) }
func (t *txRepositories) Rides() repository.RideRepository { return NewRideRepositoryWithTx(t.tx) }
func (t *txRepositories) Users() repository.UserRepository { return NewUserRepositoryWithTx(t.tx) }
func (t *txRepositories) Plans() repository.PlanRepository { return NewPlanRepositoryWithTx(t.tx) }
func (t *txRepositories) Payments() repository.PaymentRepository {
	return NewPaymentRepositoryWithTx(t.tx)
}
func (t *txRepositories) Zones() repository.ZoneRepository { return NewZoneRepositoryWithTx(t.tx) }
func (t *txRepositories) PricingConfig() repository.PricingConfigRepository {
	return NewPricingConfigRepositoryWithTx(t.tx)
}
func (t *txRepositories) Idempotency() repository.IdempotencyRepository {
	return NewIdempotencyRepositoryWithTx(t.tx)
}
func (t *txRepositories) Maintenance() repository.MaintenanceRepository {
	return NewMaintenanceRepositoryWithTx(t.tx)
}

// mapWriteError translates unique violations into repository.ErrDuplicate.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
