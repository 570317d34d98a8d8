package postgres

import (
	"context"
	"database/sql"

	"bikeshare/internal/domain"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, email, role, weight_kg, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`

	var weight sql.NullFloat64
	if user.WeightKg > 0 {
		weight = sql.NullFloat64{Float64: user.WeightKg, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query, user.ID, user.Email, user.Role, weight, user.PasswordHash, user.CreatedAt)
	return mapWriteError(err)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanOne(ctx, `SELECT id, email, role, weight_kg, password_hash, created_at FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(ctx, `SELECT id, email, role, weight_kg, password_hash, created_at FROM users WHERE email = $1`, email)
}

// LockUser locks the user row for the rest of the transaction.
func (r *UserRepository) LockUser(ctx context.Context, id string) error {
	var locked string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return mapNoRows(err)
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	var weight sql.NullFloat64
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Email, &user.Role, &weight, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if weight.Valid {
		user.WeightKg = weight.Float64
	}
	return &user, nil
}
