package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// ErrInvalidCredentials indicates login failure.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)

// Service wraps authentication business rules: it verifies credentials and
// bearer tokens but never makes authorization decisions.
type Service struct {
	repo   Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates email/password credentials and issues a bearer token.
// Inactive accounts cannot log in.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if account.Status != shared.StatusActive {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(ctx, account.ID)
}

// Logout revokes the given bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Verify resolves a bearer token to a user id.
func (s *Service) Verify(ctx context.Context, token string) (int64, error) {
	userID, err := s.tokens.Lookup(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return 0, fmt.Errorf("%w: invalid token", httpx.ErrUnauthorized)
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}
