package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// IdempotencyRepository stores idempotency records.
type IdempotencyRepository interface {
	// Acquire inserts a pending record for rec.Key unless one exists, then
	// locks and returns the stored row. created reports whether this call
	// inserted it. A concurrent caller holding the same key blocks until the
	// owning transaction ends.
	Acquire(ctx context.Context, rec *domain.IdempotencyRecord) (stored *domain.IdempotencyRecord, created bool, err error)

	// SaveResponse stores the response of a pending record. Returns
	// ErrNotFound if no record exists for key.
	SaveResponse(ctx context.Context, key string, status int, body []byte) error
}
