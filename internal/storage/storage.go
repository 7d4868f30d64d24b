// Package storage provides the SQL persistence layer. The same schema and
// queries run on SQLite for local use and on PostgreSQL for the hosted
// backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/service"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Ensure SQLStorage implements the Storage interface.
var _ service.Storage = (*SQLStorage)(nil)

// Config selects a backend. For SQLite the DSN is a file path or ":memory:".
type Config struct {
	Driver string
	DSN    string
}

// SQLStorage implements service.Storage over database/sql.
type SQLStorage struct {
	db     *sql.DB
	logger *slog.Logger
	driver string
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg Config) (*SQLStorage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(cfg.DSN, "dsn"); err != nil {
		return nil, err
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "", DriverSQLite, "sqlite":
		cfg.Driver = DriverSQLite
		db, err = openSQLite(cfg.DSN)
	case DriverPostgres, "postgres":
		cfg.Driver = DriverPostgres
		db, err = sql.Open(DriverPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", common.ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:     db,
		driver: cfg.Driver,
		logger: common.ComponentLogger("storage").With("driver", cfg.Driver),
	}, nil
}

// NewSQLiteStorage opens a SQLite database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	return Open(context.Background(), Config{Driver: DriverSQLite, DSN: dbPath})
}

func openSQLite(dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	// SQLite doesn't benefit from multiple connections, and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Driver returns the database/sql driver in use.
func (s *SQLStorage) Driver() string {
	return s.driver
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a uniqueness constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}
