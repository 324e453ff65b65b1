// Package migrate applies the embedded SQL schema migrations to PostgreSQL.
//
// Migrations are pairs of files named NNNNNN_name.up.sql and NNNNNN_name.down.sql.
// Applied versions are recorded in a history table so that Up is idempotent.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// DefaultTable is the history table used when none is configured.
const DefaultTable = "schema_migrations"

// lockID serializes concurrent migrators (for example several API replicas with AUTO_MIGRATE).
const lockID int64 = 7316460912

// Migration errors.
var (
	ErrInvalidFileName     = errors.New("invalid migration file name")
	ErrIncompleteMigration = errors.New("migration is missing its up or down file")
	ErrDuplicateMigration  = errors.New("duplicate migration file")
	ErrNothingToRevert     = errors.New("no applied migrations to revert")
	ErrUnknownVersion      = errors.New("applied version has no migration file")
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// File is the parsed form of a migration file name.
type File struct {
	Version   int
	Name      string
	Direction string
}

// ParseFileName parses a name such as "000001_users.up.sql".
func ParseFileName(name string) (File, error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return File{}, fmt.Errorf("%w: %s", ErrInvalidFileName, name)
	}

	version, err := strconv.Atoi(m[1])
	if err != nil || version <= 0 {
		return File{}, fmt.Errorf("%w: %s", ErrInvalidFileName, name)
	}

	return File{Version: version, Name: m[2], Direction: m[3]}, nil
}

// Migration is one schema version with its forward and reverse SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string

	hasUp   bool
	hasDown bool
}

// Load reads every migration from fsys and returns them sorted by version.
// Files that do not look like migrations are ignored.
func Load(fsys fs.FS) ([]Migration, error) {
	byVersion := make(map[int]*Migration)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := ParseFileName(d.Name())
		if err != nil {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		m, ok := byVersion[file.Version]
		if !ok {
			m = &Migration{Version: file.Version, Name: file.Name}
			byVersion[file.Version] = m
		}

		switch file.Direction {
		case "up":
			if m.hasUp {
				return fmt.Errorf("%w: %s", ErrDuplicateMigration, path)
			}
			m.UpSQL, m.hasUp = string(data), true
		case "down":
			if m.hasDown {
				return fmt.Errorf("%w: %s", ErrDuplicateMigration, path)
			}
			m.DownSQL, m.hasDown = string(data), true
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if !m.hasUp || !m.hasDown {
			return nil, fmt.Errorf("%w: version %d", ErrIncompleteMigration, m.Version)
		}
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Status describes the migration state of a database.
type Status struct {
	CurrentVersion int   `json:"current_version"`
	Applied        []int `json:"applied"`
	Pending        []int `json:"pending"`
	Total          int   `json:"total"`
}

// HasPending reports whether any migration still needs to be applied.
func (s *Status) HasPending() bool {
	return len(s.Pending) > 0
}

// Migrator applies migrations using a pgx connection pool.
type Migrator struct {
	pool       *pgxpool.Pool
	migrations []Migration
	table      string
	logger     *slog.Logger
}

// New loads migrations from fsys and returns a Migrator that records history in table.
// An empty table name selects DefaultTable.
func New(pool *pgxpool.Pool, fsys fs.FS, table string, logger *slog.Logger) (*Migrator, error) {
	migrations, err := Load(fsys)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Migrator{
		pool:       pool,
		migrations: migrations,
		table:      pq.QuoteIdentifier(table),
		logger:     logger.With("component", "migrate"),
	}, nil
}

// Migrations returns the loaded migrations in ascending version order.
func (m *Migrator) Migrations() []Migration {
	return m.migrations
}

// Up applies every pending migration in version order.
// Each migration and its history row are committed in one transaction.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withLock(ctx, func(conn *pgxpool.Conn) error {
		applied, err := m.appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		count := 0
		for _, mig := range m.migrations {
			if applied[mig.Version] {
				continue
			}

			m.logger.Info("applying migration", "version", mig.Version, "name", mig.Name)

			insert := fmt.Sprintf(`INSERT INTO %s (version, name) VALUES ($1, $2)`, m.table)
			err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, insert, mig.Version, mig.Name)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to apply migration %d_%s: %w", mig.Version, mig.Name, err)
			}
			count++
		}

		m.logger.Info("migrations up to date", "applied", count)
		return nil
	})
}

// Down reverts the most recently applied migration.
// Returns ErrNothingToRevert when the history is empty.
func (m *Migrator) Down(ctx context.Context) error {
	return m.withLock(ctx, func(conn *pgxpool.Conn) error {
		applied, err := m.appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		latest := 0
		for v := range applied {
			if v > latest {
				latest = v
			}
		}
		if latest == 0 {
			return ErrNothingToRevert
		}

		mig, ok := m.find(latest)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownVersion, latest)
		}

		m.logger.Info("reverting migration", "version", mig.Version, "name", mig.Name)

		del := fmt.Sprintf(`DELETE FROM %s WHERE version = $1`, m.table)
		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, del, mig.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to revert migration %d_%s: %w", mig.Version, mig.Name, err)
		}

		return nil
	})
}

// Status reports the current version and which migrations are pending.
func (m *Migrator) Status(ctx context.Context) (*Status, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := m.appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Applied: []int{},
		Pending: []int{},
		Total:   len(m.migrations),
	}
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			status.Applied = append(status.Applied, mig.Version)
			status.CurrentVersion = mig.Version
		} else {
			status.Pending = append(status.Pending, mig.Version)
		}
	}

	return status, nil
}

func (m *Migrator) find(version int) (Migration, bool) {
	for _, mig := range m.migrations {
		if mig.Version == version {
			return mig, true
		}
	}
	return Migration{}, false
}

// appliedVersions creates the history table if needed and returns the recorded versions.
func (m *Migrator) appliedVersions(ctx context.Context, conn *pgxpool.Conn) (map[int]bool, error) {
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    BIGINT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, m.table)
	if _, err := conn.Exec(ctx, create); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, m.table))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations table: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration versions: %w", err)
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}
	return applied, nil
}

// withLock runs fn on a dedicated connection holding a session advisory lock.
func (m *Migrator) withLock(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			m.logger.Warn("failed to release migration lock", "error", err)
		}
	}()

	return fn(conn)
}
