package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

var (
	// ErrMissingKey is returned when a guarded call carries no key.
	ErrMissingKey = errors.New("idempotency key is required")

	// ErrKeyReuse is returned when a key is presented with a different
	// endpoint or payload than the one it was first used with.
	ErrKeyReuse = errors.New("idempotency key reused with a different request")

	// ErrNoPendingRecord is returned when a response is stored for a key that
	// was never ensured.
	ErrNoPendingRecord = errors.New("no pending idempotency record")
)

// MaxKeyLength bounds client keys.
const MaxKeyLength = 255

// Response is the stored outcome of a guarded call.
type Response struct {
	Status int
	Body   []byte
}

// Request identifies one guarded call.
type Request struct {
	Key      string
	Endpoint string
	Hash     string
}

// NewRequest validates the key and hashes the payload.
func NewRequest(key, endpoint string, payload any) (Request, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Request{}, ErrMissingKey
	}
	if len(key) > MaxKeyLength {
		return Request{}, fmt.Errorf("%w: key longer than %d bytes", ErrMissingKey, MaxKeyLength)
	}
	hash, err := Hash(endpoint, payload)
	if err != nil {
		return Request{}, err
	}
	return Request{Key: key, Endpoint: endpoint, Hash: hash}, nil
}

func (r Request) matches(rec *domain.IdempotencyRecord) bool {
	return rec.Endpoint == r.Endpoint && rec.RequestHash == r.Hash
}

// Cache is a best-effort replay cache for completed records. Get returns
// nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Put(ctx context.Context, rec *domain.IdempotencyRecord) error
}

// Guard enforces at-most-once execution per key. The database record is the
// source of truth; the cache only short-circuits replays.
type Guard struct {
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewGuard creates a guard. cache may be nil.
func NewGuard(cache Cache, logger *slog.Logger) *Guard {
	return &Guard{cache: cache, logger: logger, now: time.Now}
}

// Lookup consults the replay cache before any transaction is opened.
func (g *Guard) Lookup(ctx context.Context, req Request) (*Response, error) {
	if g.cache == nil {
		return nil, nil
	}
	rec, err := g.cache.Get(ctx, req.Key)
	if err != nil {
		g.logger.Warn("idempotency cache lookup failed", slog.String("key", req.Key), slog.Any("error", err))
		return nil, nil
	}
	if rec == nil || !rec.Completed() {
		return nil, nil
	}
	if !req.matches(rec) {
		return nil, ErrKeyReuse
	}
	return &Response{Status: rec.ResponseStatus, Body: rec.ResponseBody}, nil
}

// Ensure claims the key inside tx. It returns the stored response when one
// exists, or nil when the caller must perform the operation exactly once.
// Concurrent callers with the same key block until the owner's transaction ends.
func (g *Guard) Ensure(ctx context.Context, repo repository.IdempotencyRepository, req Request) (*Response, error) {
	rec, created, err := repo.Acquire(ctx, &domain.IdempotencyRecord{
		Key:         req.Key,
		Endpoint:    req.Endpoint,
		RequestHash: req.Hash,
		CreatedAt:   g.now(),
	})
	if err != nil {
		return nil, err
	}
	if !req.matches(rec) {
		return nil, ErrKeyReuse
	}
	if rec.Completed() {
		return &Response{Status: rec.ResponseStatus, Body: rec.ResponseBody}, nil
	}
	if !created {
		g.logger.Warn("re-claiming pending idempotency record",
			slog.String("key", req.Key),
			slog.String("endpoint", req.Endpoint),
			slog.Time("created_at", rec.CreatedAt),
		)
	}
	return nil, nil
}

// Store records the response for a key claimed by Ensure in the same tx.
func (g *Guard) Store(ctx context.Context, repo repository.IdempotencyRepository, req Request, resp Response) error {
	err := repo.SaveResponse(ctx, req.Key, resp.Status, resp.Body)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNoPendingRecord, req.Key)
	}
	return err
}

// Remember publishes a committed response to the replay cache.
func (g *Guard) Remember(ctx context.Context, req Request, resp Response) {
	if g.cache == nil {
		return
	}
	err := g.cache.Put(ctx, &domain.IdempotencyRecord{
		Key:            req.Key,
		Endpoint:       req.Endpoint,
		RequestHash:    req.Hash,
		ResponseStatus: resp.Status,
		ResponseBody:   resp.Body,
		CreatedAt:      g.now(),
	})
	if err != nil {
		g.logger.Warn("idempotency cache write failed", slog.String("key", req.Key), slog.Any("error", err))
	}
}

// Do runs fn at most once per key. The claim, fn's writes and the stored
// response commit together; replayed reports whether resp came from storage.
func (g *Guard) Do(
	ctx context.Context,
	store repository.Store,
	req Request,
	fn func(ctx context.Context, tx repository.Tx) (Response, error),
) (resp Response, replayed bool, err error) {
	cached, err := g.Lookup(ctx, req)
	if err != nil {
		return Response{}, false, err
	}
	if cached != nil {
		return *cached, true, nil
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		stored, err := g.Ensure(ctx, tx.Idempotency(), req)
		if err != nil {
			return err
		}
		if stored != nil {
			resp, replayed = *stored, true
			return nil
		}

		resp, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		return g.Store(ctx, tx.Idempotency(), req, resp)
	})
	if err != nil {
		return Response{}, false, err
	}

	g.Remember(ctx, req, resp)
	return resp, replayed, nil
}
