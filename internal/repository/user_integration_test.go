//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starterkit/starterkit/internal/testutil"
)

// ============================================================================
// User Repository Integration Tests
// ============================================================================

func TestIntegrationUserRepository_CreateUser(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	before := time.Now().Add(-time.Minute)
	user, err := repo.CreateUser(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if user.ID <= 0 {
		t.Errorf("expected generated ID, got %d", user.ID)
	}
	if user.Email != "a@example.com" {
		t.Errorf("Email mismatch: got %q", user.Email)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if user.CreatedAt.Before(before) {
		t.Errorf("CreatedAt %v is older than test start", user.CreatedAt)
	}
}

func TestIntegrationUserRepository_UniqueIDs(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	seen := make(map[int64]bool)
	var last int64
	for i := 0; i < 10; i++ {
		user, err := repo.CreateUser(ctx, "same@example.com")
		if err != nil {
			t.Fatalf("CreateUser #%d failed: %v", i, err)
		}
		if seen[user.ID] {
			t.Fatalf("duplicate ID %d", user.ID)
		}
		if user.ID <= last {
			t.Errorf("ID %d not greater than previous %d", user.ID, last)
		}
		seen[user.ID] = true
		last = user.ID
	}
}

func TestIntegrationUserRepository_EmailRoundTrip(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	emails := []string{
		"plain@example.com",
		"Mixed.Case+tag@Example.COM",
		"\"quoted local\"@example.com",
		"ünïcödé@例え.jp",
	}

	for _, email := range emails {
		t.Run(email, func(t *testing.T) {
			created, err := repo.CreateUser(ctx, email)
			if err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}

			loaded, err := repo.GetUserByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetUserByID failed: %v", err)
			}
			if loaded.Email != email {
				t.Errorf("Email round trip: got %q, want %q", loaded.Email, email)
			}
			if !loaded.CreatedAt.Equal(created.CreatedAt) {
				t.Errorf("CreatedAt changed: got %v, want %v", loaded.CreatedAt, created.CreatedAt)
			}
		})
	}
}

func TestIntegrationUserRepository_CreatedAtStableAcrossReads(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	created, err := repo.CreateUser(ctx, testutil.UniqueEmail("stable"))
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		loaded, err := repo.GetUserByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if !loaded.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("read #%d: CreatedAt = %v, want %v", i, loaded.CreatedAt, created.CreatedAt)
		}
	}
}

func TestIntegrationUserRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	_, err := repo.GetUserByID(ctx, 999999)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_ListUsers_Pagination(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		user, err := repo.CreateUser(ctx, testutil.UniqueEmail("list"))
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		ids = append(ids, user.ID)
	}

	page1, cursor, err := repo.ListUsers(ctx, UserFilter{}, "", 2)
	if err != nil {
		t.Fatalf("ListUsers page 1 failed: %v", err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("page 1: got %d users, cursor %q", len(page1), cursor)
	}

	page2, cursor, err := repo.ListUsers(ctx, UserFilter{}, cursor, 2)
	if err != nil {
		t.Fatalf("ListUsers page 2 failed: %v", err)
	}
	page3, cursor, err := repo.ListUsers(ctx, UserFilter{}, cursor, 2)
	if err != nil {
		t.Fatalf("ListUsers page 3 failed: %v", err)
	}
	if cursor != "" {
		t.Errorf("expected empty cursor on last page, got %q", cursor)
	}

	all := append(append(page1, page2...), page3...)
	if len(all) != len(ids) {
		t.Fatalf("expected %d users across pages, got %d", len(ids), len(all))
	}
	for i, u := range all {
		if u.ID != ids[i] {
			t.Errorf("position %d: ID = %d, want %d", i, u.ID, ids[i])
		}
	}

	count, err := repo.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != int64(len(ids)) {
		t.Errorf("CountUsers = %d, want %d", count, len(ids))
	}
}

func TestIntegrationUserRepository_ListUsers_EmailFilter(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	target := testutil.UniqueEmail("filter")
	for _, email := range []string{target, testutil.UniqueEmail("other"), target} {
		if _, err := repo.CreateUser(ctx, email); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	users, _, err := repo.ListUsers(ctx, UserFilter{Email: target}, "", 10)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users with email %q, got %d", target, len(users))
	}
	for _, u := range users {
		if u.Email != target {
			t.Errorf("unexpected email %q", u.Email)
		}
	}
}

func TestIntegrationUserRepository_ListUsers_InvalidCursor(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	_, _, err := repo.ListUsers(ctx, UserFilter{}, "not-a-cursor", 10)
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("Expected ErrInvalidCursor, got: %v", err)
	}
}

func newUserTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}

	return ctx, repo
}
