// Package memory provides an in-process user store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kisansahayak/kisan/internal/domain"
	"github.com/kisansahayak/kisan/internal/repository"
)

// Repository keeps users in a map keyed by email.
type Repository struct {
	mu      sync.RWMutex
	byEmail map[string]domain.User
}

var _ repository.UserRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{byEmail: make(map[string]domain.User)}
}

// CreateUser inserts a user unless the email is already present.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	user.ID = uuid.NewString()
	stored := *user
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.byEmail[user.Email] = stored
	return nil
}

// GetUserByEmail returns a copy of the stored user.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := stored
	u.PasswordHash = append([]byte(nil), stored.PasswordHash...)
	return &u, nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports the number of stored users.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}
