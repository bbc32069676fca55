package audit

import (
	"context"
	"fmt"

	"github.com/roadline-tms/roadline-tms/internal/platform/db"
	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
)

// RepositoryPort defines data access methods for the audit trail.
type RepositoryPort interface {
	Insert(ctx context.Context, q db.Querier, userID *int64, action string, details map[string]any) (Entry, error)
	Query(ctx context.Context, filters QueryFilters, limit, offset int) ([]Entry, int, error)
}

// Service coordinates audit trail access.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Record appends one entry. Mutating services call this with their own
// transaction as q so the entry and the mutation commit as one unit; a nil
// userID marks the action as system-initiated.
func (s *Service) Record(ctx context.Context, q db.Querier, userID *int64, action string, details map[string]any) (Entry, error) {
	if action == "" {
		return Entry{}, fmt.Errorf("%w: audit action required", httpx.ErrValidation)
	}
	return s.repo.Insert(ctx, q, userID, action, details)
}

// Query returns a page of entries newest first with pagination metadata.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]Entry, shared.Pagination, error) {
	page := shared.NewPagination(filters.Page, filters.PageSize, 0)
	entries, total, err := s.repo.Query(ctx, filters, page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page.Page, page.PerPage, total), nil
}
