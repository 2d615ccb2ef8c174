package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

// Dialects supported by the runner.
const (
	DialectPostgres = goose.DialectPostgres
	DialectSQLite   = goose.DialectSQLite3
)

// Runner wraps database migration capabilities.
type Runner struct {
	db       *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// New returns a migration runner backed by goose. Migrations are read from the
// top level of fsys.
func New(db *sql.DB, dialect goose.Dialect, fsys fs.FS, log *slog.Logger) (Runner, error) {
	if db == nil {
		return Runner{}, errors.New("nil database provided")
	}
	if fsys == nil {
		return Runner{}, errors.New("nil migrations filesystem")
	}
	if log == nil {
		log = slog.Default()
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return Runner{}, fmt.Errorf("configure goose: %w", err)
	}
	return Runner{db: db, provider: provider, log: log}, nil
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	r.log.Info("applying migrations")
	results, err := r.provider.Up(runCtx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.log.Info("migrations applied", "count", len(results))
	return nil
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	for _, st := range statuses {
		attrs := []any{"version", st.Source.Version, "path", st.Source.Path, "state", string(st.State)}
		if !st.AppliedAt.IsZero() {
			attrs = append(attrs, "applied_at", st.AppliedAt)
		}
		r.log.Info("migration status", attrs...)
	}
	return statuses, nil
}

// Version returns the current schema version.
func (r Runner) Version(ctx context.Context) (int64, error) {
	version, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if _, err := r.provider.DownTo(runCtx, targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
	} else {
		r.log.Info("rolling back latest migration")
		if _, err := r.provider.Down(runCtx); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
	}

	r.log.Info("rollback complete")
	return nil
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
