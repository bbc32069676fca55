package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// Audit action tags recorded by this module.
const (
	ActionUsersCreate       = "users.create"
	ActionUsersUpdate       = "users.update"
	ActionUsersStatusUpdate = "users.status.update"
)

// TxRepository defines the data access methods available inside one
// transaction, including the audit append that commits with the mutation.
type TxRepository interface {
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string, roleID *int64, status string) (User, error)
	UpdateUser(ctx context.Context, id int64, name, email string, roleID *int64, status string) (User, error)
	UpdateStatus(ctx context.Context, id int64, status string) (User, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	RecordAudit(ctx context.Context, userID *int64, action string, details map[string]any) error
}

// RepositoryPort defines data access methods for the user directory.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListUsers(ctx context.Context, filters ListFilters) ([]User, error)
}

// CreateInput carries the fields for a new account. An empty Password asks
// the directory to generate a single-use temporary credential.
type CreateInput struct {
	Name     string
	Email    string
	RoleID   *int64
	Status   string
	Password string
}

// UpdateInput is a full replace of the mutable account fields.
type UpdateInput struct {
	Name   string
	Email  string
	RoleID *int64
	Status string
}

// Service handles user directory business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns users matching the filters, descending id.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, error) {
	return s.repo.ListUsers(ctx, filters)
}

// Create inserts a new account. When no password is supplied a random
// URL-safe credential is generated, returned exactly once and never persisted
// in plaintext, logged or audited.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (User, string, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Status == "" {
		input.Status = shared.StatusActive
	}
	if err := validateStatus(input.Status); err != nil {
		return User{}, "", err
	}

	tempPassword := ""
	password := input.Password
	if password == "" {
		generated, err := shared.GenerateTempPassword()
		if err != nil {
			return User{}, "", err
		}
		tempPassword = generated
		password = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", fmt.Errorf("users: hash password: %w", err)
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkRole(ctx, tx, input.RoleID); err != nil {
			return err
		}
		var err error
		if created, err = tx.CreateUser(ctx, strings.TrimSpace(input.Name), input.Email, string(hash), input.RoleID, input.Status); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionUsersCreate, map[string]any{
			"userId": created.ID,
			"email":  created.Email,
			"roleId": created.RoleID,
		})
	})
	if err != nil {
		return User{}, "", err
	}
	return created, tempPassword, nil
}

// Update fully replaces name, email, role and status.
func (s *Service) Update(ctx context.Context, actorID, id int64, input UpdateInput) (User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateStatus(input.Status); err != nil {
		return User{}, err
	}
	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		if err := checkRole(ctx, tx, input.RoleID); err != nil {
			return err
		}
		var err error
		if updated, err = tx.UpdateUser(ctx, id, strings.TrimSpace(input.Name), input.Email, input.RoleID, input.Status); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionUsersUpdate, map[string]any{
			"userId": id,
			"email":  updated.Email,
			"roleId": updated.RoleID,
			"status": updated.Status,
		})
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// SetStatus is the narrow activation toggle, audited as its own action type
// so deactivations stand out in the trail.
func (s *Service) SetStatus(ctx context.Context, actorID, id int64, status string) (User, error) {
	if err := validateStatus(status); err != nil {
		return User{}, err
	}
	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if updated, err = tx.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionUsersStatusUpdate, map[string]any{
			"userId": id,
			"status": status,
		})
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func validateStatus(status string) error {
	if status != shared.StatusActive && status != shared.StatusInactive {
		return httpx.NewValidationError(httpx.FieldError{Field: "status", Message: "must be active or inactive"})
	}
	return nil
}

func checkRole(ctx context.Context, tx TxRepository, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	exists, err := tx.RoleExists(ctx, *roleID)
	if err != nil {
		return err
	}
	if !exists {
		return httpx.NewValidationError(httpx.FieldError{Field: "roleId", Message: "role does not exist"})
	}
	return nil
}
