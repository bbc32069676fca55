package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// Resolver computes the active permission set for a verified identity by
// following the user's role binding. Resolution happens per request against
// the store; there is no in-process cache.
type Resolver struct {
	pool *pgxpool.Pool
}

// NewResolver constructs a Resolver.
func NewResolver(pool *pgxpool.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// Resolve returns the principal for userID. Inactive users resolve to an
// empty permission set regardless of their role.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (shared.Principal, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM users WHERE id = $1`, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Principal{}, fmt.Errorf("%w: unknown user", httpx.ErrUnauthorized)
	}
	if err != nil {
		return shared.Principal{}, fmt.Errorf("rbac: resolve principal: %w", err)
	}

	principal := shared.Principal{UserID: userID, Status: status, Permissions: map[string]struct{}{}}
	if status != shared.StatusActive {
		return principal, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.key
		FROM users u
		JOIN role_permissions rp ON rp.role_id = u.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE u.id = $1`, userID)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return shared.Principal{}, fmt.Errorf("rbac: scan permission key: %w", err)
		}
		principal.Permissions[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return shared.Principal{}, err
	}
	return principal, nil
}
