package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
)

// Audit action tags recorded by this module.
const (
	ActionPermissionsCreate = "permissions.create"
	ActionPermissionsUpdate = "permissions.update"
	ActionPermissionsDelete = "permissions.delete"
	ActionRolesCreate       = "roles.create"
	ActionRolesUpdate       = "roles.update"
	ActionRolesDelete       = "roles.delete"
	ActionRolePermsSet      = "roles.permissions.set"
)

// TxRepository defines the data access methods available inside one
// transaction. RecordAudit writes through the same transaction, so a failed
// audit append rolls the mutation back with it.
type TxRepository interface {
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, key, description string) (Permission, error)
	UpdatePermission(ctx context.Context, id int64, key, description string) (Permission, error)
	CountPermissionRefs(ctx context.Context, permissionID int64) (int, error)
	DeletePermission(ctx context.Context, id int64) error
	EnsurePermissions(ctx context.Context, keys []string) error
	PermissionsByKeys(ctx context.Context, keys []string) ([]Permission, error)

	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	CountRoleUsers(ctx context.Context, roleID int64) (int, error)
	DeleteRole(ctx context.Context, id int64) error
	ClearRolePermissions(ctx context.Context, roleID int64) error
	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	RecordAudit(ctx context.Context, userID *int64, action string, details map[string]any) error
}

// RepositoryPort defines data access methods for the rbac module.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoles(ctx context.Context) ([]Role, error)
}

// PermissionPatch carries a partial permission update; nil fields are left as-is.
type PermissionPatch struct {
	Key         *string
	Description *string
}

// Service implements the permission catalog and role store rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns the catalog ordered by key.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission adds a catalog entry after validating the key shape.
func (s *Service) CreatePermission(ctx context.Context, actorID int64, key, description string) (Permission, error) {
	key = strings.TrimSpace(key)
	if err := ValidatePermissionKey(key); err != nil {
		return Permission{}, err
	}
	var created Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if created, err = tx.CreatePermission(ctx, key, strings.TrimSpace(description)); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionPermissionsCreate, map[string]any{
			"permissionId": created.ID,
			"key":          created.Key,
		})
	})
	if err != nil {
		return Permission{}, err
	}
	return created, nil
}

// UpdatePermission applies a partial update. A supplied key is re-validated
// for shape and uniqueness; renaming is the only way to change a key.
func (s *Service) UpdatePermission(ctx context.Context, actorID, id int64, patch PermissionPatch) (Permission, error) {
	if patch.Key != nil {
		trimmed := strings.TrimSpace(*patch.Key)
		if err := ValidatePermissionKey(trimmed); err != nil {
			return Permission{}, err
		}
		patch.Key = &trimmed
	}
	var updated Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPermission(ctx, id)
		if err != nil {
			return err
		}
		key, description := current.Key, current.Description
		if patch.Key != nil {
			key = *patch.Key
		}
		if patch.Description != nil {
			description = strings.TrimSpace(*patch.Description)
		}
		if updated, err = tx.UpdatePermission(ctx, id, key, description); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionPermissionsUpdate, map[string]any{
			"permissionId": id,
		})
	})
	if err != nil {
		return Permission{}, err
	}
	return updated, nil
}

// DeletePermission removes a catalog entry. The in-use check and the delete
// run in one transaction so a concurrent role binding cannot slip between them.
func (s *Service) DeletePermission(ctx context.Context, actorID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPermission(ctx, id); err != nil {
			return err
		}
		refs, err := tx.CountPermissionRefs(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: permission in use", httpx.ErrDuplicate)
		}
		if err := tx.DeletePermission(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionPermissionsDelete, map[string]any{
			"permissionId": id,
		})
	})
}

// ListRoles returns all roles with resolved permission keys, name ascending.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole inserts a new role with an empty permission set.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoleName(name); err != nil {
		return Role{}, err
	}
	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if created, err = tx.CreateRole(ctx, name, strings.TrimSpace(description)); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionRolesCreate, map[string]any{
			"roleId": created.ID,
			"name":   created.Name,
		})
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole replaces a role's name and description.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoleName(name); err != nil {
		return Role{}, err
	}
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if updated, err = tx.UpdateRole(ctx, id, name, strings.TrimSpace(description)); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionRolesUpdate, map[string]any{
			"roleId": id,
		})
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a role and its permission bindings. Deletion is rejected
// while any user still references the role.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRole(ctx, id); err != nil {
			return err
		}
		users, err := tx.CountRoleUsers(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return fmt.Errorf("%w: role assigned to users", httpx.ErrDuplicate)
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actorID, ActionRolesDelete, map[string]any{
			"roleId": id,
		})
	})
}

// SetRolePermissions replaces a role's permission set with the given keys.
// Missing keys are auto-provisioned with conflict-skip semantics, then the
// join rows are replaced inside one transaction so no concurrent reader ever
// observes an empty set mid-replacement. The operation is idempotent.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, keys []string) (Role, error) {
	keys = normalizeKeys(keys)
	for _, key := range keys {
		if err := ValidatePermissionKey(key); err != nil {
			return Role{}, err
		}
	}
	var result Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := tx.EnsurePermissions(ctx, keys); err != nil {
				return err
			}
		}
		perms, err := tx.PermissionsByKeys(ctx, keys)
		if err != nil {
			return err
		}
		if len(perms) != len(keys) {
			return fmt.Errorf("rbac: resolved %d of %d permission keys", len(perms), len(keys))
		}
		if err := tx.ClearRolePermissions(ctx, roleID); err != nil {
			return err
		}
		ids := make([]int64, len(perms))
		resolved := make([]string, len(perms))
		for i, p := range perms {
			ids[i] = p.ID
			resolved[i] = p.Key
		}
		if len(ids) > 0 {
			if err := tx.AttachPermissions(ctx, roleID, ids); err != nil {
				return err
			}
		}
		role.Permissions = resolved
		result = role
		return tx.RecordAudit(ctx, &actorID, ActionRolePermsSet, map[string]any{
			"roleId": roleID,
			"keys":   keys,
		})
	})
	if err != nil {
		return Role{}, err
	}
	return result, nil
}

// normalizeKeys trims, lowercases, dedupes and sorts the requested key list.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
