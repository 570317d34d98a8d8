package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"bikeshare/internal/domain"
)

// ZoneRepository is a PostgreSQL implementation of repository.ZoneRepository.
type ZoneRepository struct {
	q Querier
}

// NewZoneRepositoryWithTx creates a zone repository using a transaction.
func NewZoneRepositoryWithTx(tx *sql.Tx) *ZoneRepository {
	return &ZoneRepository{q: tx}
}

type polygonGeoJSON struct {
	Type        string              `json:"type"`
	Coordinates [][]domain.Position `json:"coordinates"`
}

// Create persists a new zone.
func (r *ZoneRepository) Create(ctx context.Context, zone *domain.GeoZone) error {
	polygon, err := json.Marshal(polygonGeoJSON{Type: "Polygon", Coordinates: zone.Rings})
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO geozones (id, name, kind, polygon_geojson, created_at) VALUES ($1, $2, $3, $4, $5)`,
		zone.ID, zone.Name, zone.Kind, polygon, zone.CreatedAt,
	)
	return mapWriteError(err)
}

// List returns every zone in creation order.
func (r *ZoneRepository) List(ctx context.Context) ([]domain.GeoZone, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, kind, polygon_geojson, created_at FROM geozones ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []domain.GeoZone
	for rows.Next() {
		var (
			z       domain.GeoZone
			polygon []byte
			doc     polygonGeoJSON
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Kind, &polygon, &z.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(polygon, &doc); err != nil {
			return nil, err
		}
		z.Rings = doc.Coordinates
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
