package users

import "time"

// User represents a user account for administrative management. RoleID is a
// weak reference to at most one role; the password hash never leaves the
// persistence layer.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	RoleID    *int64    `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListFilters narrows the directory listing.
type ListFilters struct {
	Search string
	RoleID *int64
	Status string
}
