package rbac

import (
	"fmt"
	"regexp"
	"time"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
)

// Permission represents an atomic capability identified by a flat
// "module.action" key.
type Permission struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Role represents a named bundle of permission keys.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var keyPattern = regexp.MustCompile(`^[a-z]+\.[a-z]+$`)

// ValidatePermissionKey enforces the lowercase module.action key shape.
func ValidatePermissionKey(key string) error {
	if len(key) < 3 || !keyPattern.MatchString(key) {
		return httpx.NewValidationError(httpx.FieldError{
			Field:   "key",
			Message: "must match module.action in lowercase",
		})
	}
	return nil
}

// ValidateRoleName enforces the minimum role name length.
func ValidateRoleName(name string) error {
	if len(name) < 2 {
		return httpx.NewValidationError(httpx.FieldError{
			Field:   "name",
			Message: "must be at least 2 characters",
		})
	}
	return nil
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, what, id)
}
