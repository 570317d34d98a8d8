package domain

import (
	"fmt"
	"time"
)

// BikeLockState represents the physical lock state of a bike.
type BikeLockState string

const (
	BikeLockStateLocked    BikeLockState = "locked"
	BikeLockStateUnlocking BikeLockState = "unlocking"
	BikeLockStateInUse     BikeLockState = "in_use"
	BikeLockStateLocking   BikeLockState = "locking"
)

// BikeStatus represents the operational status of a bike.
type BikeStatus string

const (
	BikeStatusOK          BikeStatus = "ok"
	BikeStatusMaintenance BikeStatus = "maintenance"
	BikeStatusOffline     BikeStatus = "offline"
)

// ParseBikeStatus validates a raw status value.
func ParseBikeStatus(raw string) (BikeStatus, error) {
	switch s := BikeStatus(raw); s {
	case BikeStatusOK, BikeStatusMaintenance, BikeStatusOffline:
		return s, nil
	default:
		return "", fmt.Errorf("unknown bike status %q", raw)
	}
}

// Bike represents a dockless bike in the fleet.
type Bike struct {
	ID             string
	QRPublicID     string
	LockState      BikeLockState
	Status         BikeStatus
	Lat            float64
	Lon            float64
	BatteryPct     int
	LastReportedAt time.Time
}

// Unlockable reports whether a ride may start on the bike.
// A bike that is not in service never leaves the locked family of states.
func (b *Bike) Unlockable() bool {
	if b.Status != BikeStatusOK {
		return false
	}
	switch b.LockState {
	case BikeLockStateLocked, BikeLockStateUnlocking:
		return true
	case BikeLockStateInUse, BikeLockStateLocking:
		return false
	default:
		return false
	}
}

// MoveTo records a reported position.
func (b *Bike) MoveTo(lat, lon float64, at time.Time) {
	b.Lat = lat
	b.Lon = lon
	b.LastReportedAt = at
}
