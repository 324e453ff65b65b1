// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/starterkit/starterkit/internal/migrate"
	"github.com/starterkit/starterkit/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TestMigrationsTable is the history table used by integration tests.
const TestMigrationsTable = "schema_migrations_test"

// ResetUsersSchema drops the users table and its migration history, then migrates up.
func ResetUsersSchema(ctx context.Context, pool *pgxpool.Pool) error {
	drop := `
		DROP TABLE IF EXISTS users;
		DROP TABLE IF EXISTS ` + TestMigrationsTable + `;
	`
	if _, err := pool.Exec(ctx, drop); err != nil {
		return fmt.Errorf("drop users schema: %w", err)
	}

	m, err := migrate.New(pool, migrations.FS, TestMigrationsTable, nil)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// UniqueEmail generates a unique email address for tests.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}
