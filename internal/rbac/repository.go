package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadline-tms/roadline-tms/internal/audit"
	"github.com/roadline-tms/roadline-tms/internal/platform/db"
	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for permissions, roles
// and the role_permissions join table.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, audit: auditRepo}
}

// WithTx runs fn against a transactional view of the repository. Every
// statement issued through the TxRepository, including the audit record,
// commits or rolls back as one unit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx, audit: r.audit})
	})
}

// ListPermissions returns all permissions ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, description, created_at FROM permissions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListRoles returns all roles with resolved permission keys, name ascending.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
		       COALESCE(array_agg(p.key ORDER BY p.key) FILTER (WHERE p.key IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		GROUP BY r.id
		ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.Permissions); err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// txRepository implements TxRepository over a single transaction.
type txRepository struct {
	q     db.Querier
	audit *audit.Repository
}

func (t *txRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := t.q.QueryRow(ctx, `SELECT id, key, description, created_at FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, notFound("permission", id)
	}
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: get permission: %w", err)
	}
	return p, nil
}

func (t *txRepository) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	var p Permission
	err := t.q.QueryRow(ctx,
		`INSERT INTO permissions (key, description) VALUES ($1, $2)
		 RETURNING id, key, description, created_at`,
		key, description,
	).Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Permission{}, fmt.Errorf("%w: permission key %q already exists", httpx.ErrDuplicate, key)
	}
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: create permission: %w", err)
	}
	return p, nil
}

func (t *txRepository) UpdatePermission(ctx context.Context, id int64, key, description string) (Permission, error) {
	var p Permission
	err := t.q.QueryRow(ctx,
		`UPDATE permissions SET key = $2, description = $3 WHERE id = $1
		 RETURNING id, key, description, created_at`,
		id, key, description,
	).Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, notFound("permission", id)
	}
	if db.IsUniqueViolation(err) {
		return Permission{}, fmt.Errorf("%w: permission key %q already exists", httpx.ErrDuplicate, key)
	}
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: update permission: %w", err)
	}
	return p, nil
}

func (t *txRepository) CountPermissionRefs(ctx context.Context, permissionID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, permissionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rbac: count permission refs: %w", err)
	}
	return count, nil
}

func (t *txRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("rbac: delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("permission", id)
	}
	return nil
}

// EnsurePermissions inserts any missing keys with conflict-skip semantics so
// two racing calls with overlapping keys never produce duplicate rows.
func (t *txRepository) EnsurePermissions(ctx context.Context, keys []string) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO permissions (key) SELECT unnest($1::text[]) ON CONFLICT (key) DO NOTHING`,
		keys)
	if err != nil {
		return fmt.Errorf("rbac: ensure permissions: %w", err)
	}
	return nil
}

func (t *txRepository) PermissionsByKeys(ctx context.Context, keys []string) ([]Permission, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, key, description, created_at FROM permissions WHERE key = ANY($1::text[]) ORDER BY key`,
		keys)
	if err != nil {
		return nil, fmt.Errorf("rbac: permissions by keys: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (t *txRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := t.q.QueryRow(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
		       COALESCE(array_agg(p.key ORDER BY p.key) FILTER (WHERE p.key IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE r.id = $1
		GROUP BY r.id`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.Permissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, notFound("role", id)
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

func (t *txRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	role := Role{Permissions: []string{}}
	err := t.q.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 RETURNING id, name, description, created_at, updated_at`,
		name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: role name %q already exists", httpx.ErrDuplicate, name)
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	return role, nil
}

func (t *txRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := t.q.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, notFound("role", id)
	}
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: role name %q already exists", httpx.ErrDuplicate, name)
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	return role, nil
}

func (t *txRepository) CountRoleUsers(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rbac: count role users: %w", err)
	}
	return count, nil
}

func (t *txRepository) DeleteRole(ctx context.Context, id int64) error {
	// role_permissions rows are owned by the role and go with it.
	if _, err := t.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("rbac: delete role permissions: %w", err)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("role", id)
	}
	return nil
}

func (t *txRepository) ClearRolePermissions(ctx context.Context, roleID int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: clear role permissions: %w", err)
	}
	return nil
}

// AttachPermissions inserts join rows, skipping any that already exist to
// stay idempotent under retries.
func (t *txRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id)
		 SELECT $1, unnest($2::bigint[])
		 ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionIDs)
	if err != nil {
		return fmt.Errorf("rbac: attach permissions: %w", err)
	}
	return nil
}

func (t *txRepository) RecordAudit(ctx context.Context, userID *int64, action string, details map[string]any) error {
	_, err := t.audit.Insert(ctx, t.q, userID, action, details)
	return err
}

var _ TxRepository = (*txRepository)(nil)
