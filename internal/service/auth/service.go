package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kisansahayak/kisan/internal/domain"
	"github.com/kisansahayak/kisan/internal/repository"
	"github.com/kisansahayak/kisan/pkg/config"
	"github.com/kisansahayak/kisan/pkg/crypto"
	jwtpkg "github.com/kisansahayak/kisan/pkg/jwt"
)

var (
	// ErrValidation wraps every input rejection; the wrapped message says which field failed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict reports a signup for an email that is already registered.
	ErrConflict = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInternal hides store, hashing and signing failures from callers.
	ErrInternal = errors.New("internal error")
	// ErrMissingSigningSecret is returned by New when no JWT secret is configured.
	ErrMissingSigningSecret = errors.New("auth: jwt signing secret is not configured")
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) (*Service, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, ErrMissingSigningSecret
	}
	if users == nil {
		return nil, errors.New("auth: nil user repository")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, logger: logger, cfg: cfg, now: time.Now}, nil
}

// Signup registers a new user. Nothing is returned on success; the caller
// signs in separately to obtain a token.
func (s *Service) Signup(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return validationError("username is required")
	}
	if email == "" {
		return validationError("email is required")
	}
	if err := s.checkPassword(password); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		return fmt.Errorf("%w: hash password", ErrInternal)
	}
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.CreateUser(storeCtx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrConflict
		}
		s.logger.Error("create user failed", "error", err)
		return fmt.Errorf("%w: create user", ErrInternal)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return nil
}

// Signin verifies credentials and returns a signed token carrying the user id.
func (s *Service) Signin(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", validationError("email is required")
	}
	if err := s.checkPassword(password); err != nil {
		return "", err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	user, err := s.users.GetUserByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		s.logger.Error("lookup user failed", "error", err)
		return "", fmt.Errorf("%w: lookup user", ErrInternal)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, crypto.ErrMismatchedPassword) {
			// corrupt stored hash; still answer as a credential failure
			s.logger.Warn("compare password failed", "user_id", user.ID, "error", err)
		}
		return "", ErrInvalidCredentials
	}

	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("sign token failed", "user_id", user.ID, "error", err)
		return "", fmt.Errorf("%w: sign token", ErrInternal)
	}
	s.logger.Info("user signed in", "user_id", user.ID)
	return token, nil
}

// checkPassword enforces the configured length bounds, counted in characters.
func (s *Service) checkPassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < s.cfg.PasswordMinLength {
		return validationError(fmt.Sprintf("password must be at least %d characters", s.cfg.PasswordMinLength))
	}
	if s.cfg.PasswordMaxLength > 0 && n > s.cfg.PasswordMaxLength {
		return validationError(fmt.Sprintf("password must be at most %d characters", s.cfg.PasswordMaxLength))
	}
	if len(password) > crypto.MaxPasswordBytes {
		return validationError(fmt.Sprintf("password must be at most %d bytes", crypto.MaxPasswordBytes))
	}
	return nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func validationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
