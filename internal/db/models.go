package db

import (
	"strings"
	"time"
)

// User is the user-directory record. Email is the primary key and is always
// stored normalised (see NormalizeEmail).
type User struct {
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	Role         string    `json:"role" db:"role"`
	Plan         string    `json:"plan" db:"plan"`
	Provider     string    `json:"provider,omitempty" db:"provider"` // "password" or an OAuth provider
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Usage        Usage     `json:"usage"`
}

// Usage holds the per-user counters shown on the dashboard.
type Usage struct {
	Connections      int64 `json:"connections" db:"connections"`
	BytesTransferred int64 `json:"bytes_transferred" db:"bytes_transferred"`
}

// NormalizeEmail makes emails comparable case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a copy safe to hand out of a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
