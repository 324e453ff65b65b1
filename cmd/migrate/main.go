// Package main is the schema migration CLI for the starterkit database.
//
//	migrate up              apply all pending migrations
//	migrate down [--steps]  revert the latest migrations
//	migrate status          show applied and pending versions
//	migrate list            list embedded migrations (no database needed)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/starterkit/starterkit/internal/migrate"
	"github.com/starterkit/starterkit/migrations"
)

// cliConfig is the subset of the API configuration the CLI needs.
type cliConfig struct {
	DatabaseURL     string `env:"DATABASE_URL,required,notEmpty"`
	MigrationsTable string `env:"MIGRATIONS_TABLE" envDefault:"schema_migrations"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"LOG_FORMAT" envDefault:"text"`
}

// errPendingMigrations is returned by "status --check" when the schema is behind.
var errPendingMigrations = errors.New("pending migrations")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var table string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the starterkit database schema",
		Long: `Apply, revert and inspect the SQL migrations embedded in this binary.

Connection settings come from the environment:
  DATABASE_URL       PostgreSQL connection string (required)
  MIGRATIONS_TABLE   history table name (default schema_migrations)
  LOG_LEVEL          debug, info, warn or error (default info)
  LOG_FORMAT         text or json (default text)`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&table, "table", "", "history table name (overrides MIGRATIONS_TABLE)")

	root.AddCommand(
		newUpCommand(&table),
		newDownCommand(&table),
		newStatusCommand(&table),
		newListCommand(),
	)
	return root
}

func newUpCommand(table *string) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, *table, func(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
				start := time.Now()
				if err := m.Up(ctx); err != nil {
					return err
				}
				logger.Info("migrate up finished", "duration_ms", time.Since(start).Milliseconds())
				return nil
			})
		},
	}
}

func newDownCommand(table *string) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migrations",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, *table, func(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
				for i := 0; i < steps; i++ {
					if err := m.Down(ctx); err != nil {
						if errors.Is(err, migrate.ErrNothingToRevert) {
							logger.Info("nothing left to revert", "reverted", i)
							return nil
						}
						return err
					}
				}
				logger.Info("migrate down finished", "reverted", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	return cmd
}

func newStatusCommand(table *string) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, *table, func(ctx context.Context, m *migrate.Migrator, _ *slog.Logger) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status)
				if check && status.HasPending() {
					return errPendingMigrations
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "exit non-zero when migrations are pending")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the migrations embedded in this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := migrate.Load(migrations.FS)
			if err != nil {
				return err
			}
			for _, m := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "%06d  %s\n", m.Version, m.Name)
			}
			return nil
		},
	}
}

// withMigrator loads configuration, connects to PostgreSQL and runs fn with a
// logger tagged by a per-invocation run_id.
func withMigrator(cmd *cobra.Command, table string, fn func(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error) error {
	cfg := cliConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if table == "" {
		table = cfg.MigrationsTable
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg).With(
		"run_id", ulid.Make().String(),
		"command", cmd.Name(),
		"table", table,
	)

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to connect to database")
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migrate.New(pool, migrations.FS, table, logger)
	if err != nil {
		return err
	}

	if err := fn(ctx, m, logger); err != nil {
		logger.Error("migration command failed", "error", err)
		return err
	}
	return nil
}

func newLogger(w io.Writer, cfg cliConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printStatus(w io.Writer, s *migrate.Status) {
	fmt.Fprintf(w, "current version: %d\n", s.CurrentVersion)
	fmt.Fprintf(w, "applied: %d/%d %s\n", len(s.Applied), s.Total, formatVersions(s.Applied))
	fmt.Fprintf(w, "pending: %d %s\n", len(s.Pending), formatVersions(s.Pending))
}

func formatVersions(versions []int) string {
	if len(versions) == 0 {
		return "[]"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = fmt.Sprintf("%06d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
