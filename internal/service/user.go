// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/starterkit/starterkit/internal/cache"
	"github.com/starterkit/starterkit/internal/events"
	"github.com/starterkit/starterkit/internal/metrics"
	"github.com/starterkit/starterkit/internal/model"
	"github.com/starterkit/starterkit/internal/repository"
)

// Service errors.
var (
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrEmailTooLong  = errors.New("email address too long")
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

const (
	// MaxEmailLength bounds stored emails (RFC 5321 path limit plus headroom).
	MaxEmailLength = 320

	defaultListLimit = 20
	maxListLimit     = 100
)

// UserStore is the persistence the service depends on.
type UserStore interface {
	CreateUser(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, filter repository.UserFilter, cursor string, limit int) ([]*model.User, string, error)
}

// UserCache is the optional read-through cache for users.
type UserCache interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetUser(ctx context.Context, user *model.User) error
	IsNegativelyCached(ctx context.Context, id int64) (bool, error)
	SetNegativeCache(ctx context.Context, id int64) error
}

// EventPublisher receives user domain events.
type EventPublisher interface {
	PublishAsync(event events.UserEvent)
}

// UserService handles user business logic.
type UserService struct {
	store     UserStore
	cache     UserCache
	publisher EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewUserService creates a new UserService.
// cache and publisher may be nil.
func NewUserService(store UserStore, userCache UserCache, publisher EventPublisher, recorder metrics.Recorder, logger *slog.Logger) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		store:     store,
		cache:     userCache,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With("component", "service.user"),
		now:       time.Now,
	}
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Email string
}

// CreateUser validates the email and stores a new user.
// The email is stored exactly as given.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	if err := ValidateEmail(input.Email); err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.IncUserCreated()

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.logger.Warn("failed to warm user cache", "user_id", user.ID, "error", err)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishAsync(events.NewUserCreated(user, s.now()))
	}

	return user, nil
}

// GetUser retrieves a user by ID, consulting the cache first.
func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveUserLookupDuration(time.Since(start))
	}()

	if s.cache != nil {
		if neg, err := s.cache.IsNegativelyCached(ctx, id); err == nil && neg {
			return nil, ErrUserNotFound
		}

		cached, err := s.cache.GetUser(ctx, id)
		if err == nil {
			s.metrics.IncUserCacheHit()
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("user cache read failed", "user_id", id, "error", err)
		}
		s.metrics.IncUserCacheMiss()
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return s.notFound(ctx, id)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.logger.Warn("failed to cache user", "user_id", id, "error", err)
		}
	}

	return user, nil
}

// notFound records a negative cache entry for id and returns ErrUserNotFound.
// A create committed between the miss and the entry would be hidden behind it,
// so the store is read once more after the entry is written.
func (s *UserService) notFound(ctx context.Context, id int64) (*model.User, error) {
	if s.cache == nil {
		return nil, ErrUserNotFound
	}
	if err := s.cache.SetNegativeCache(ctx, id); err != nil {
		s.logger.Warn("failed to set negative cache", "user_id", id, "error", err)
		return nil, ErrUserNotFound
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("user recheck failed", "user_id", id, "error", err)
		}
		return nil, ErrUserNotFound
	}

	// SetUser clears the negative entry.
	if err := s.cache.SetUser(ctx, user); err != nil {
		s.logger.Warn("failed to cache user", "user_id", id, "error", err)
	}
	return user, nil
}

// ListUsersInput defines input for listing users.
type ListUsersInput struct {
	Cursor string
	Limit  int
	Email  string
}

// ListUsersOutput defines output for listing users.
type ListUsersOutput struct {
	Users      []*model.User
	NextCursor string
	HasMore    bool
}

// ListUsers retrieves a page of users in insertion order.
func (s *UserService) ListUsers(ctx context.Context, input ListUsersInput) (*ListUsersOutput, error) {
	if input.Limit <= 0 || input.Limit > maxListLimit {
		input.Limit = defaultListLimit
	}

	users, nextCursor, err := s.store.ListUsers(ctx, repository.UserFilter{Email: input.Email}, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, err
	}
	if users == nil {
		users = []*model.User{}
	}

	return &ListUsersOutput{
		Users:      users,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// ValidateEmail checks that email is a single bare address with no display name
// or surrounding whitespace.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}
	if addr.Name != "" || addr.Address != email {
		return ErrInvalidEmail
	}

	return nil
}
