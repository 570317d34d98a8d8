package postgres

import (
	"context"
	"database/sql"

	"bikeshare/internal/domain"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, ride_id, amount_cents, status, idempotency_key, psp_reference,
	created_at, updated_at, captured_at, refunded_at`

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.RideID,
		payment.AmountCents,
		payment.Status,
		payment.IdempotencyKey,
		payment.PSPReference,
		payment.CreatedAt,
		payment.UpdatedAt,
		nullTime(payment.CapturedAt),
		nullTime(payment.RefundedAt),
	)
	return mapWriteError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.scanOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves and locks a payment by ID.
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.scanOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

// GetByRideIDForUpdate retrieves and locks the payment of a ride.
func (r *PaymentRepository) GetByRideIDForUpdate(ctx context.Context, rideID string) (*domain.Payment, error) {
	return r.scanOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ride_id = $1 FOR UPDATE`, rideID)
}

// Update updates an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, psp_reference = $2, updated_at = $3, captured_at = $4, refunded_at = $5
		WHERE id = $6
	`
	result, err := r.q.ExecContext(ctx, query,
		payment.Status,
		payment.PSPReference,
		payment.UpdatedAt,
		nullTime(payment.CapturedAt),
		nullTime(payment.RefundedAt),
		payment.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Summary aggregates captured payments.
func (r *PaymentRepository) Summary(ctx context.Context) (domain.PaymentSummary, error) {
	var s domain.PaymentSummary
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0), COUNT(*) FROM payments WHERE status = 'captured'`,
	).Scan(&s.CapturedCents, &s.CapturedCount)
	return s, err
}

func (r *PaymentRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var payment domain.Payment
	var capturedAt, refundedAt sql.NullTime

	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&payment.ID,
		&payment.RideID,
		&payment.AmountCents,
		&payment.Status,
		&payment.IdempotencyKey,
		&payment.PSPReference,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&capturedAt,
		&refundedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}

	if capturedAt.Valid {
		payment.CapturedAt = capturedAt.Time
	}
	if refundedAt.Valid {
		payment.RefundedAt = refundedAt.Time
	}

	return &payment, nil
}
