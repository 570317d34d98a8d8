package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// DefaultLocationKey is the GEO set holding the last known bike positions.
const DefaultLocationKey = "bikes:locations"

// BikeLocation is a bike's indexed position.
type BikeLocation struct {
	BikeID    string
	Lat       float64
	Lon       float64
	DistanceM float64
}

// LocationStore maintains the bike GEO index in Redis.
type LocationStore struct {
	client redis.UniversalClient
	key    string
}

// NewLocationStore creates a new LocationStore. An empty key uses DefaultLocationKey.
func NewLocationStore(client redis.UniversalClient, key string) *LocationStore {
	if key == "" {
		key = DefaultLocationKey
	}
	return &LocationStore{client: client, key: key}
}

// UpdateLocation stores a bike's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, bikeID string, lat, lon float64) error {
	return s.client.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      bikeID,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
}

// FindNearbyBikes returns bikes within radiusM meters, nearest first.
func (s *LocationStore) FindNearbyBikes(ctx context.Context, lat, lon, radiusM float64) ([]BikeLocation, error) {
	results, err := s.client.GeoRadius(ctx, s.key, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusM,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]BikeLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, BikeLocation{
			BikeID:    r.Name,
			Lat:       r.Latitude,
			Lon:       r.Longitude,
			DistanceM: r.Dist,
		})
	}

	return locations, nil
}

// RemoveLocation removes a bike from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, bikeID string) error {
	return s.client.ZRem(ctx, s.key, bikeID).Err()
}
