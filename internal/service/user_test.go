package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starterkit/starterkit/internal/cache"
	"github.com/starterkit/starterkit/internal/events"
	"github.com/starterkit/starterkit/internal/metrics"
	"github.com/starterkit/starterkit/internal/model"
	"github.com/starterkit/starterkit/internal/repository"
)

// fakeStore is an in-memory UserStore that assigns IDs like an identity column.
type fakeStore struct {
	mu      sync.Mutex
	users   []*model.User
	nextID  int64
	gets    int
	listErr error
}

func (f *fakeStore) CreateUser(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &model.User{ID: f.nextID, Email: email, CreatedAt: time.Now().UTC()}
	f.users = append(f.users, u)
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	for _, u := range f.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeStore) ListUsers(ctx context.Context, filter repository.UserFilter, cursor string, limit int) ([]*model.User, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	var out []*model.User
	for _, u := range f.users {
		if filter.Email == "" || u.Email == filter.Email {
			out = append(out, u)
		}
	}
	if len(out) > limit {
		return out[:limit], "next", nil
	}
	return out, "", nil
}

// fakeCache is an in-memory UserCache.
type fakeCache struct {
	users map[int64]*model.User
	neg   map[int64]bool
	err   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: map[int64]*model.User{}, neg: map[int64]bool{}}
}

func (c *fakeCache) GetUser(ctx context.Context, id int64) (*model.User, error) {
	if c.err != nil {
		return nil, c.err
	}
	u, ok := c.users[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return u, nil
}

func (c *fakeCache) SetUser(ctx context.Context, user *model.User) error {
	c.users[user.ID] = user
	delete(c.neg, user.ID)
	return nil
}

func (c *fakeCache) IsNegativelyCached(ctx context.Context, id int64) (bool, error) {
	return c.neg[id], nil
}

func (c *fakeCache) SetNegativeCache(ctx context.Context, id int64) error {
	c.neg[id] = true
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	events []events.UserEvent
}

func (p *fakePublisher) PublishAsync(event events.UserEvent) {
	p.events = append(p.events, event)
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"valid", "a@example.com", nil},
		{"mixed case with tag", "Mixed.Case+tag@Example.COM", nil},
		{"empty", "", ErrInvalidEmail},
		{"no at sign", "not-an-email", ErrInvalidEmail},
		{"display name", "Alice <alice@example.com>", ErrInvalidEmail},
		{"leading space", " a@example.com", ErrInvalidEmail},
		{"trailing space", "a@example.com ", ErrInvalidEmail},
		{"two addresses", "a@example.com, b@example.com", ErrInvalidEmail},
		{"too long", strings.Repeat("a", MaxEmailLength) + "@example.com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateEmail(tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestCreateUser_AssignsStorageFields(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	recorder := metrics.NewInMemory()
	pub := &fakePublisher{}
	uc := newFakeCache()
	svc := NewUserService(store, uc, pub, recorder, nil)

	user, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if user.ID == 0 {
		t.Error("expected generated ID")
	}
	if user.Email != "a@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
	if user.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if got := recorder.Snapshot().UsersCreated; got != 1 {
		t.Errorf("UsersCreated = %d, want 1", got)
	}
	if _, ok := uc.users[user.ID]; !ok {
		t.Error("expected created user to be cached")
	}
	if len(pub.events) != 1 || pub.events[0].UserID != user.ID || pub.events[0].Type != events.TypeUserCreated {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestCreateUser_EmailStoredVerbatim(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := NewUserService(store, nil, nil, nil, nil)

	email := "Mixed.Case+tag@Example.COM"
	created, err := svc.CreateUser(context.Background(), CreateUserInput{Email: email})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	loaded, err := svc.GetUser(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if loaded.Email != email {
		t.Errorf("Email = %q, want %q", loaded.Email, email)
	}
}

func TestCreateUser_InvalidEmailNotStored(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewUserService(store, nil, pub, nil, nil)

	_, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "nope"})
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if len(store.users) != 0 {
		t.Error("invalid email should not be stored")
	}
	if len(pub.events) != 0 {
		t.Error("invalid email should not publish events")
	}
}

func TestCreateUser_UniqueIDs(t *testing.T) {
	t.Parallel()

	svc := NewUserService(&fakeStore{}, nil, nil, nil, nil)

	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		u, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "same@example.com"})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if seen[u.ID] {
			t.Fatalf("duplicate ID %d", u.ID)
		}
		seen[u.ID] = true
	}
}

func TestGetUser_CacheHitSkipsStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	uc := newFakeCache()
	recorder := metrics.NewInMemory()
	svc := NewUserService(store, uc, nil, recorder, nil)

	created, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if _, err := svc.GetUser(context.Background(), created.ID); err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}

	if store.gets != 0 {
		t.Errorf("expected no store reads, got %d", store.gets)
	}
	snap := recorder.Snapshot()
	if snap.UserCacheHits != 1 {
		t.Errorf("UserCacheHits = %d, want 1", snap.UserCacheHits)
	}
	if snap.UserLookupDurationCount != 1 {
		t.Errorf("UserLookupDurationCount = %d, want 1", snap.UserLookupDurationCount)
	}
}

func TestGetUser_CacheMissFillsCache(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	created, _ := store.CreateUser(context.Background(), "a@example.com")

	uc := newFakeCache()
	recorder := metrics.NewInMemory()
	svc := NewUserService(store, uc, nil, recorder, nil)

	got, err := svc.GetUser(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != created.Email {
		t.Errorf("Email = %q, want %q", got.Email, created.Email)
	}
	if _, ok := uc.users[created.ID]; !ok {
		t.Error("expected user to be cached after miss")
	}
	if recorder.Snapshot().UserCacheMisses != 1 {
		t.Error("expected one cache miss")
	}
}

func TestGetUser_CacheErrorFallsBackToStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	created, _ := store.CreateUser(context.Background(), "a@example.com")

	uc := newFakeCache()
	uc.err = errors.New("redis down")
	svc := NewUserService(store, uc, nil, nil, nil)

	if _, err := svc.GetUser(context.Background(), created.ID); err != nil {
		t.Fatalf("GetUser should fall back to store, got %v", err)
	}
	if store.gets != 1 {
		t.Errorf("expected 1 store read, got %d", store.gets)
	}
}

func TestGetUser_NotFoundIsNegativelyCached(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	uc := newFakeCache()
	svc := NewUserService(store, uc, nil, nil, nil)

	if _, err := svc.GetUser(context.Background(), 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if !uc.neg[99] {
		t.Error("expected negative cache entry")
	}

	if _, err := svc.GetUser(context.Background(), 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if store.gets != 2 {
		t.Errorf("negative cache should prevent further store reads, got %d reads", store.gets)
	}
}

// lateCreateStore inserts a user right after the first lookup misses,
// like a create committing while a read of the next id is in flight.
type lateCreateStore struct {
	*fakeStore
	created bool
}

func (s *lateCreateStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.fakeStore.GetUserByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) && !s.created {
		s.created = true
		if _, cerr := s.fakeStore.CreateUser(ctx, "late@example.com"); cerr != nil {
			return nil, cerr
		}
	}
	return user, err
}

func TestGetUser_ConcurrentCreateNotHiddenByNegativeCache(t *testing.T) {
	t.Parallel()

	store := &lateCreateStore{fakeStore: &fakeStore{}}
	uc := newFakeCache()
	svc := NewUserService(store, uc, nil, nil, nil)

	user, err := svc.GetUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected user created during lookup, got %v", err)
	}
	if user.Email != "late@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
	if uc.neg[1] {
		t.Error("negative cache entry should be cleared")
	}

	if _, err := svc.GetUser(context.Background(), 1); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
}

func TestListUsers_Defaults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	for i := 0; i < 25; i++ {
		_, _ = store.CreateUser(context.Background(), "a@example.com")
	}
	svc := NewUserService(store, nil, nil, nil, nil)

	tests := []struct {
		name      string
		limit     int
		wantCount int
		wantMore  bool
	}{
		{"zero uses default", 0, defaultListLimit, true},
		{"negative uses default", -1, defaultListLimit, true},
		{"over max uses default", maxListLimit + 1, defaultListLimit, true},
		{"explicit", 5, 5, true},
		{"larger than data", 50, 25, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.ListUsers(context.Background(), ListUsersInput{Limit: tt.limit})
			if err != nil {
				t.Fatalf("ListUsers failed: %v", err)
			}
			if len(out.Users) != tt.wantCount {
				t.Errorf("got %d users, want %d", len(out.Users), tt.wantCount)
			}
			if out.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", out.HasMore, tt.wantMore)
			}
		})
	}
}

func TestListUsers_EmptyIsNotNil(t *testing.T) {
	t.Parallel()

	svc := NewUserService(&fakeStore{}, nil, nil, nil, nil)

	out, err := svc.ListUsers(context.Background(), ListUsersInput{})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if out.Users == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestListUsers_InvalidCursor(t *testing.T) {
	t.Parallel()

	store := &fakeStore{listErr: repository.ErrInvalidCursor}
	svc := NewUserService(store, nil, nil, nil, nil)

	_, err := svc.ListUsers(context.Background(), ListUsersInput{Cursor: "bad"})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}
