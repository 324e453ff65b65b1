// Package repository stores user records in PostgreSQL through a pgx pool.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// applicationName tags server-side sessions in pg_stat_activity.
const applicationName = "starterkit"

// Repository provides database access methods.
type Repository struct {
	pool *pgxpool.Pool
}

// Option adjusts the pool configuration before the pool is created.
type Option func(*pgxpool.Config)

// WithMaxConns caps the number of open connections.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// WithMinConns keeps n connections open while idle.
func WithMinConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n >= 0 {
			c.MinConns = n
		}
	}
}

// WithMaxConnLifetime recycles connections older than d.
func WithMaxConnLifetime(d time.Duration) Option {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.MaxConnLifetime = d
		}
	}
}

// New connects to databaseURL and verifies the connection.
// Defaults are 10 max and 2 min connections.
func New(ctx context.Context, databaseURL string, opts ...Option) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.MinConns > config.MaxConns {
		config.MinConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the pool for the migrator.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
