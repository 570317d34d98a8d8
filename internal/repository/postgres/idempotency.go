package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

// IdempotencyRepository is a PostgreSQL implementation of repository.IdempotencyRepository.
type IdempotencyRepository struct {
	q Querier
}

// NewIdempotencyRepositoryWithTx creates an idempotency repository using a transaction.
func NewIdempotencyRepositoryWithTx(tx *sql.Tx) *IdempotencyRepository {
	return &IdempotencyRepository{q: tx}
}

// Acquire inserts the record if absent and locks the stored row. The insert
// waits on any uncommitted insert of the same key, so a concurrent request
// observes the winner's committed response.
func (r *IdempotencyRepository) Acquire(ctx context.Context, rec *domain.IdempotencyRecord) (*domain.IdempotencyRecord, bool, error) {
	var inserted string
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (key, endpoint, request_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
		RETURNING key
	`, rec.Key, rec.Endpoint, rec.RequestHash, rec.CreatedAt).Scan(&inserted)

	created := true
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, err
	}

	var (
		stored domain.IdempotencyRecord
		status sql.NullInt64
		body   []byte
	)
	err = r.q.QueryRowContext(ctx, `
		SELECT key, endpoint, request_hash, response_status, response_body, created_at
		FROM idempotency_keys WHERE key = $1 FOR UPDATE
	`, rec.Key).Scan(&stored.Key, &stored.Endpoint, &stored.RequestHash, &status, &body, &stored.CreatedAt)
	if err != nil {
		return nil, false, mapNoRows(err)
	}
	if status.Valid {
		stored.ResponseStatus = int(status.Int64)
		stored.ResponseBody = body
	}

	return &stored, created, nil
}

// SaveResponse stores the response of a pending record.
func (r *IdempotencyRepository) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE idempotency_keys SET response_status = $1, response_body = $2 WHERE key = $3`,
		status, body, key,
	)
	if err != nil {
		return err
	}
	if err := requireRow(result); err != nil {
		return repository.ErrNotFound
	}
	return nil
}
