package repository

import (
	"context"

	"github.com/kisansahayak/kisan/internal/domain"
)

// UserRepository persists users. Implementations enforce email uniqueness
// with their own constraint so concurrent creates for one email cannot both succeed.
type UserRepository interface {
	// CreateUser inserts user and assigns user.ID. It returns ErrDuplicateEmail
	// when the email is taken.
	CreateUser(ctx context.Context, user *domain.User) error
	// GetUserByEmail returns ErrNotFound when no user has the exact email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
