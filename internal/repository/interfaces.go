package repository

import (
	"context"
	"errors"

	"github.com/raakeshmj/vpnshield/internal/db"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// UserRepository is the user directory. Emails are matched after
// db.NormalizeEmail; implementations return copies, never shared records.
type UserRepository interface {
	Get(ctx context.Context, email string) (*db.User, error)
	Put(ctx context.Context, user *db.User) error
	Delete(ctx context.Context, email string) error
	List(ctx context.Context) ([]*db.User, error)

	// Create inserts user unless the email is taken (ErrAlreadyExists).
	Create(ctx context.Context, user *db.User) error
	SetRole(ctx context.Context, email, role string) error
	SetPlan(ctx context.Context, email, plan string) error
	AddUsage(ctx context.Context, email string, delta db.Usage) error
}

// Pinger is implemented by repositories backed by an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}
