package domain

import (
	"fmt"
	"time"
)

// ZoneKind classifies a geofence polygon.
type ZoneKind string

const (
	ZoneKindParking  ZoneKind = "parking"
	ZoneKindNoPark   ZoneKind = "no_park"
	ZoneKindSlowZone ZoneKind = "slow_zone"
)

// ParseZoneKind validates a raw zone kind.
func ParseZoneKind(raw string) (ZoneKind, error) {
	switch k := ZoneKind(raw); k {
	case ZoneKindParking, ZoneKindNoPark, ZoneKindSlowZone:
		return k, nil
	default:
		return "", fmt.Errorf("unknown zone kind %q", raw)
	}
}

// GeoZone is a named polygon. The first ring is the exterior, the rest are holes.
type GeoZone struct {
	ID        string
	Name      string
	Kind      ZoneKind
	Rings     [][]Position
	CreatedAt time.Time
}
