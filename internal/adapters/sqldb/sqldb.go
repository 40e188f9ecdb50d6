// Package sqldb opens SQL connections for the supported drivers and applies
// the embedded schema migrations.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // driver: sqlite
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const defaultSQLiteDSN = "file:verdict.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ParseDriver maps a configuration string to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case DriverPostgres, "pgx", "postgresql":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, s)
}

// Open opens and pings a database. An empty dsn selects a local default for
// SQLite and is rejected for Postgres.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var name string
	switch driver {
	case DriverSQLite:
		name = "sqlite" // modernc driver
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
	case DriverPostgres:
		name = "pgx" // pgx stdlib driver
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres requires a dsn", ErrOpen)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if driver == DriverSQLite {
		// A single connection serialises writers and keeps :memory: databases
		// shared across the pool.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return db, nil
}

// Migrator applies the embedded goose migrations.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator builds a Migrator for db.
func NewMigrator(db *sql.DB, driver Driver) (*Migrator, error) {
	var dialect goose.Dialect
	switch driver {
	case DriverSQLite:
		dialect = goose.DialectSQLite3
	case DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	p, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return &Migrator{provider: p}, nil
}

// Up applies pending migrations and returns the versions applied.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: apply: %w", ErrMigrate, err)
	}
	versions := make([]int64, 0, len(results))
	for _, r := range results {
		versions = append(versions, r.Source.Version)
	}
	return versions, nil
}

// Down rolls back the latest migration, or down to target when target > 0.
func (m *Migrator) Down(ctx context.Context, target int64) error {
	if target > 0 {
		if _, err := m.provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("%w: rollback to %d: %w", ErrMigrate, target, err)
		}
		return nil
	}
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("%w: rollback: %w", ErrMigrate, err)
	}
	return nil
}

// Status describes one migration.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// Status reports applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %w", ErrMigrate, err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// OpenMigrated opens a database and brings its schema up to date.
func OpenMigrated(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	m, err := NewMigrator(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := m.Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
