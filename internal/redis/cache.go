package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"bikeshare/internal/domain"
)

// DefaultReplayTTL bounds how long a completed response stays replayable from
// Redis. The database record outlives it.
const DefaultReplayTTL = 24 * time.Hour

const replayPrefix = "idem:"

type cachedRecord struct {
	Endpoint    string    `json:"endpoint"`
	RequestHash string    `json:"request_hash"`
	Status      int       `json:"status"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReplayCache caches completed idempotency records.
type ReplayCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewReplayCache creates a new ReplayCache. A non-positive ttl uses DefaultReplayTTL.
func NewReplayCache(client redis.UniversalClient, ttl time.Duration) *ReplayCache {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayCache{client: client, ttl: ttl}
}

// Get retrieves a record. It returns nil, nil on a cache miss.
func (c *ReplayCache) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	data, err := c.client.Get(ctx, replayPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &domain.IdempotencyRecord{
		Key:            key,
		Endpoint:       cached.Endpoint,
		RequestHash:    cached.RequestHash,
		ResponseStatus: cached.Status,
		ResponseBody:   cached.Body,
		CreatedAt:      cached.CreatedAt,
	}, nil
}

// Put stores a completed record. Pending records are not cached.
func (c *ReplayCache) Put(ctx context.Context, rec *domain.IdempotencyRecord) error {
	if !rec.Completed() {
		return nil
	}
	data, err := json.Marshal(cachedRecord{
		Endpoint:    rec.Endpoint,
		RequestHash: rec.RequestHash,
		Status:      rec.ResponseStatus,
		Body:        rec.ResponseBody,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, replayPrefix+rec.Key, data, c.ttl).Err()
}

// Invalidate removes a cached record.
func (c *ReplayCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, replayPrefix+key).Err()
}
