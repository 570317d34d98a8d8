package repository

import (
	"context"

	"bikeshare/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// LockUser takes the row lock that serializes ride starts for a user.
	LockUser(ctx context.Context, id string) error
}
