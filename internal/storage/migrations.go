package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(ctx context.Context, tx *sql.Tx) error
	Description string
	Version     int
}

func execAll(ctx context.Context, tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, []string{
				`CREATE TABLE IF NOT EXISTS connections (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					account_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					last_synced TIMESTAMP,
					UNIQUE (user_id, provider, account_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					connection_id TEXT NOT NULL REFERENCES connections(id),
					booked_at TEXT NOT NULL,
					description TEXT NOT NULL,
					amount DOUBLE PRECISION NOT NULL,
					currency TEXT NOT NULL DEFAULT '',
					merchant_name TEXT,
					transaction_category TEXT,
					transaction_type TEXT,
					scheduled_date TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_connection_booked ON transactions(connection_id, booked_at)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_name)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_description ON transactions(description)`,

				`CREATE TABLE IF NOT EXISTS balances (
					connection_id TEXT NOT NULL REFERENCES connections(id),
					as_of TIMESTAMP NOT NULL,
					currency TEXT NOT NULL DEFAULT '',
					current_balance DOUBLE PRECISION NOT NULL,
					available_balance DOUBLE PRECISION NOT NULL,
					PRIMARY KEY (connection_id, as_of)
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add merchant category patterns",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, []string{
				// NULL user_id marks a system rule. NULLs are distinct in the
				// unique key, so system rule uniqueness is enforced on seed.
				`CREATE TABLE IF NOT EXISTS merchant_category_patterns (
					id TEXT PRIMARY KEY,
					user_id TEXT,
					merchant_pattern TEXT NOT NULL,
					category TEXT NOT NULL,
					priority INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (user_id, merchant_pattern)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_patterns_user ON merchant_category_patterns(user_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add challenges",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, []string{
				`CREATE TABLE IF NOT EXISTS challenges (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					criteria TEXT NOT NULL,
					reward_xp INTEGER NOT NULL DEFAULT 0,
					reward_badge TEXT,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL
				)`,
				// challenge_id is not a foreign key: definitions may be retired
				// while attempts referencing them remain.
				`CREATE TABLE IF NOT EXISTS user_challenges (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					challenge_id TEXT NOT NULL,
					status TEXT NOT NULL,
					progress TEXT NOT NULL DEFAULT '{}',
					streak INTEGER NOT NULL DEFAULT 0,
					started_at TIMESTAMP NOT NULL,
					completed_at TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_user_challenges_user_status ON user_challenges(user_id, status)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_challenges_one_active
					ON user_challenges(user_id, challenge_id) WHERE status = 'active'`,
			})
		},
	},
	{
		Version:     4,
		Description: "Add rewards and category budgets",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, []string{
				`CREATE TABLE IF NOT EXISTS user_profiles (
					user_id TEXT PRIMARY KEY,
					xp INTEGER NOT NULL DEFAULT 0,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS user_badges (
					user_id TEXT NOT NULL,
					badge TEXT NOT NULL,
					awarded_at TIMESTAMP NOT NULL,
					PRIMARY KEY (user_id, badge)
				)`,
				`CREATE TABLE IF NOT EXISTS category_budgets (
					user_id TEXT NOT NULL,
					category TEXT NOT NULL,
					monthly_limit DOUBLE PRECISION NOT NULL,
					PRIMARY KEY (user_id, category)
				)`,
			})
		},
	},
}

// SchemaVersion returns the highest applied migration, or 0 for a new database.
func (s *SQLStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Migrate applies all pending database migrations.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if upErr := migration.Up(ctx, tx); upErr != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
			}
			if _, execErr := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`,
				migration.Version, migration.Description, time.Now().UTC(),
			); execErr != nil {
				return fmt.Errorf("failed to update schema version: %w", execErr)
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
