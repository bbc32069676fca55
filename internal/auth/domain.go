package auth

import "time"

// Account is the credential-bearing view of a user record.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
