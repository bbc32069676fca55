package audit

import "time"

// Entry represents one row of the append-only administrative audit trail.
// A nil UserID marks a system-initiated action. Details is an opaque
// structured payload whose shape depends on the action tag.
type Entry struct {
	ID        int64          `json:"id"`
	UserID    *int64         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// QueryFilters narrows an audit trail query.
type QueryFilters struct {
	UserID   *int64
	Action   string
	Page     int
	PageSize int
}
