package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"

	"github.com/roadline-tms/roadline-tms/internal/audit"
	"github.com/roadline-tms/roadline-tms/internal/platform/db"
	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
)

const userColumns = `id, name, email, status, role_id, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for the user directory.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, audit: auditRepo}
}

// WithTx runs fn against a transactional view of the repository.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx, audit: r.audit})
	})
}

// ListUsers returns users matching the filters, newest id first. Search terms
// are case-folded so the substring match on name and email stays
// case-insensitive beyond ASCII.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	search := ""
	if filters.Search != "" {
		search = cases.Fold().String(filters.Search)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR lower(name) LIKE '%' || $1 || '%' OR lower(email) LIKE '%' || $1 || '%')
		  AND ($2::bigint IS NULL OR role_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY id DESC`,
		search, filters.RoleID, filters.Status)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var list []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, user)
	}
	return list, rows.Err()
}

type txRepository struct {
	q     db.Querier
	audit *audit.Repository
}

func (t *txRepository) GetUser(ctx context.Context, id int64) (User, error) {
	row := t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", httpx.ErrNotFound, id)
	}
	return user, err
}

func (t *txRepository) CreateUser(ctx context.Context, name, email, passwordHash string, roleID *int64, status string) (User, error) {
	row := t.q.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		name, email, passwordHash, roleID, status)
	user, err := scanUser(row)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("%w: email already in use", httpx.ErrDuplicate)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return user, nil
}

func (t *txRepository) UpdateUser(ctx context.Context, id int64, name, email string, roleID *int64, status string) (User, error) {
	row := t.q.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3, role_id = $4, status = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, name, email, roleID, status)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", httpx.ErrNotFound, id)
	}
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("%w: email already in use", httpx.ErrDuplicate)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: update: %w", err)
	}
	return user, nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status string) (User, error) {
	row := t.q.QueryRow(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
		id, status)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", httpx.ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: update status: %w", err)
	}
	return user, nil
}

func (t *txRepository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("users: role exists: %w", err)
	}
	return exists, nil
}

func (t *txRepository) RecordAudit(ctx context.Context, userID *int64, action string, details map[string]any) error {
	_, err := t.audit.Insert(ctx, t.q, userID, action, details)
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Status, &user.RoleID, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

var _ TxRepository = (*txRepository)(nil)
