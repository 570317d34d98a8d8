package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bikeshare/internal/domain"
	"bikeshare/internal/repository"
)

// LoginRequest carries demo account credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthService verifies account credentials for the token endpoint.
type AuthService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewAuthService(store repository.Store, logger *slog.Logger) *AuthService {
	return &AuthService{store: store, logger: logger.With(slog.String("component", "auth"))}
}

// Login returns the principal for a matching email and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (domain.Principal, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.Principal{}, ErrInvalidCredentials
	}

	var user *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Principal{}, err
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Warn("login rejected", slog.String("email", email))
		return domain.Principal{}, ErrInvalidCredentials
	}
	return domain.Principal{UserID: user.ID, Role: user.Role}, nil
}
