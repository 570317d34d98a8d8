package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bikeshare/internal/config"
	bikeredis "bikeshare/internal/redis"
	"bikeshare/internal/service"
)

// NewRedisClient connects to the bike GEO index and replay cache backend.
// Commands are traced as New Relic datastore segments when nrApp is set.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if nrApp != nil {
		client.AddHook(datastoreHook{})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return client, nil
}

// datastoreHook reports each command against the key namespace it touches,
// so GEO lookups and replay cache hits show up as separate collections.
type datastoreHook struct{}

func (datastoreHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (datastoreHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		defer startSegment(ctx, cmd.Name(), keyNamespace(cmd)).End()
		return next(ctx, cmd)
	}
}

func (datastoreHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		collection := "pipeline"
		if len(cmds) > 0 {
			collection = keyNamespace(cmds[0])
		}
		defer startSegment(ctx, "pipeline", collection).End()
		return next(ctx, cmds)
	}
}

type segmentEnder interface{ End() }

type noopSegment struct{}

func (noopSegment) End() {}

func startSegment(ctx context.Context, op, collection string) segmentEnder {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return noopSegment{}
	}
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  op,
		Collection: collection,
	}
}

// keyNamespace returns the prefix before the first ':' of the command's key,
// e.g. "bikes" for bikes:locations and "idem" for replay entries.
func keyNamespace(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "redis"
	}
	key, ok := args[1].(string)
	if !ok || key == "" {
		return "redis"
	}
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// locationIndex adapts the Redis GEO store to the service's LocationIndex.
type locationIndex struct {
	store bikeredis.LocationStoreInterface
}

// NewLocationIndex wraps a Redis location store for the bike and ride services.
func NewLocationIndex(store bikeredis.LocationStoreInterface) service.LocationIndex {
	return locationIndex{store: store}
}

func (l locationIndex) UpdateLocation(ctx context.Context, bikeID string, lat, lon float64) error {
	return l.store.UpdateLocation(ctx, bikeID, lat, lon)
}

func (l locationIndex) FindNearbyBikes(ctx context.Context, lat, lon, radiusM float64) ([]service.NearbyBike, error) {
	locs, err := l.store.FindNearbyBikes(ctx, lat, lon, radiusM)
	if err != nil {
		return nil, err
	}
	hits := make([]service.NearbyBike, 0, len(locs))
	for _, loc := range locs {
		hits = append(hits, service.NearbyBike{BikeID: loc.BikeID, DistanceM: loc.DistanceM})
	}
	return hits, nil
}
