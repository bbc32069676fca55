package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadline-tms/roadline-tms/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the audit trail.
// The table is append-only: this type exposes no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry through q, which may be a transaction so the entry
// commits or rolls back together with the mutation it describes.
func (r *Repository) Insert(ctx context.Context, q db.Querier, userID *int64, action string, details map[string]any) (Entry, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal details: %w", err)
	}
	var entry Entry
	var raw []byte
	err = q.QueryRow(ctx,
		`INSERT INTO audit_logs (user_id, action, details)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, action, details, created_at`,
		userID, action, detailsJSON,
	).Scan(&entry.ID, &entry.UserID, &entry.Action, &raw, &entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entry.Details); err != nil {
			return Entry{}, fmt.Errorf("audit: unmarshal details: %w", err)
		}
	}
	return entry, nil
}

// Query returns entries newest first plus the total row count for the filters.
func (r *Repository) Query(ctx context.Context, filters QueryFilters, limit, offset int) ([]Entry, int, error) {
	where := ` WHERE ($1::bigint IS NULL OR user_id = $1)
	           AND ($2::text = '' OR action ILIKE '%' || $2 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, filters.UserID, filters.Action).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, action, details, created_at FROM audit_logs`+where+
			` ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		filters.UserID, filters.Action, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var raw []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &raw, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("audit: scan: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Details); err != nil {
				return nil, 0, fmt.Errorf("audit: unmarshal details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
