// Package storage opens the user store named by a connection string.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kisansahayak/kisan/internal/app/migrate"
	"github.com/kisansahayak/kisan/internal/repository"
	"github.com/kisansahayak/kisan/internal/repository/memory"
	"github.com/kisansahayak/kisan/internal/repository/mongo"
	"github.com/kisansahayak/kisan/internal/repository/postgres"
	pgmigrations "github.com/kisansahayak/kisan/internal/repository/postgres/migrations"
	"github.com/kisansahayak/kisan/internal/repository/sqlite"
	sqlitemigrations "github.com/kisansahayak/kisan/internal/repository/sqlite/migrations"
	"github.com/kisansahayak/kisan/pkg/config"
)

// Kind identifies a storage backend.
type Kind string

const (
	KindMongo    Kind = "mongodb"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
	KindMemory   Kind = "memory"
)

// ErrUnsupportedScheme is returned for connection strings no backend accepts.
var ErrUnsupportedScheme = errors.New("storage: unsupported database url scheme")

// ErrNoMigrations is returned by OpenMigrator for backends without SQL schema.
var ErrNoMigrations = errors.New("storage: backend has no sql migrations")

// Target is a parsed connection string.
type Target struct {
	Kind Kind
	// DSN is what the backend driver receives: the full URL for network
	// databases, the file path for SQLite.
	DSN string
}

// Parse resolves the backend from the scheme of databaseURL.
func Parse(databaseURL string) (Target, error) {
	raw := strings.TrimSpace(databaseURL)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, redact(raw))
	}
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return Target{Kind: KindMongo, DSN: raw}, nil
	case "postgres", "postgresql":
		return Target{Kind: KindPostgres, DSN: raw}, nil
	case "sqlite":
		if strings.TrimSpace(rest) == "" {
			return Target{}, errors.New("storage: sqlite url requires a file path")
		}
		return Target{Kind: KindSQLite, DSN: rest}, nil
	case "memory":
		return Target{Kind: KindMemory}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(raw string) string {
	if i := strings.Index(raw, ":"); i >= 0 {
		return raw[:i] + ":..."
	}
	return raw
}

// Store is an opened user repository plus its release hook.
type Store struct {
	repository.UserRepository
	Kind    Kind
	closeFn func(context.Context) error
}

// Close releases the backend's connections.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}

// Open connects to the configured backend and brings its schema up to date:
// SQL backends run embedded migrations, MongoDB gets its unique email index.
func Open(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (*Store, error) {
	target, err := Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("opening user store", "backend", string(target.Kind))

	switch target.Kind {
	case KindMongo:
		return openMongo(ctx, target, cfg.MongoDatabase)
	case KindPostgres:
		return openPostgres(ctx, target, log)
	case KindSQLite:
		return openSQLite(ctx, target, log)
	case KindMemory:
		log.Warn("using in-memory user store; data is lost on restart")
		return &Store{UserRepository: memory.New(), Kind: KindMemory}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, target.Kind)
}

func openMongo(ctx context.Context, target Target, database string) (*Store, error) {
	repo, err := mongo.Connect(ctx, target.DSN, database)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = repo.Close(context.Background())
		return nil, err
	}
	return &Store{UserRepository: repo, Kind: KindMongo, closeFn: repo.Close}, nil
}

func openPostgres(ctx context.Context, target Target, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrateSQL(ctx, "pgx", target.DSN, migrate.DialectPostgres, pgmigrations.FS, log); err != nil {
		pool.Close()
		return nil, err
	}

	closeFn := func(context.Context) error {
		pool.Close()
		return nil
	}
	return &Store{UserRepository: postgres.New(pool), Kind: KindPostgres, closeFn: closeFn}, nil
}

func openSQLite(ctx context.Context, target Target, log *slog.Logger) (*Store, error) {
	store, err := sqlite.Open(target.DSN)
	if err != nil {
		return nil, err
	}
	runner, err := migrate.New(store.DB(), migrate.DialectSQLite, sqlitemigrations.FS, log)
	if err == nil {
		err = runner.Ensure(ctx)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	closeFn := func(context.Context) error { return store.Close() }
	return &Store{UserRepository: store, Kind: KindSQLite, closeFn: closeFn}, nil
}

func migrateSQL(ctx context.Context, driver, dsn string, dialect goose.Dialect, fsys fs.FS, log *slog.Logger) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer db.Close()

	runner, err := migrate.New(db, dialect, fsys, log)
	if err != nil {
		return err
	}
	return runner.Ensure(ctx)
}

// Migrator is a migration runner bound to an open database handle.
type Migrator struct {
	migrate.Runner
	db *sql.DB
}

// Close releases the database handle.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// OpenMigrator returns a runner for the SQL backend named by databaseURL.
// MongoDB and memory URLs yield ErrNoMigrations.
func OpenMigrator(ctx context.Context, databaseURL string, log *slog.Logger) (*Migrator, error) {
	target, err := Parse(databaseURL)
	if err != nil {
		return nil, err
	}

	var (
		driver  string
		dsn     string
		dialect goose.Dialect
		fsys    fs.FS
	)
	switch target.Kind {
	case KindPostgres:
		driver, dsn, dialect, fsys = "pgx", target.DSN, migrate.DialectPostgres, pgmigrations.FS
	case KindSQLite:
		driver, dsn, dialect, fsys = "sqlite", target.DSN, migrate.DialectSQLite, sqlitemigrations.FS
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoMigrations, target.Kind)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}
	runner, err := migrate.New(db, dialect, fsys, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Migrator{Runner: runner, db: db}, nil
}
