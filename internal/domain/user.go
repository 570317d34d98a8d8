package domain

import (
	"fmt"
	"time"
)

// Role is the authorization role of a principal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleAdmin, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// User represents a rider in the system.
type User struct {
	ID           string
	Email        string
	Role         Role
	WeightKg     float64 // zero when unknown
	PasswordHash string  // bcrypt; empty for riders created by simulation
	CreatedAt    time.Time
}

// Principal is the authenticated caller supplied by the auth collaborator.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
