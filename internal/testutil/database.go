// Package testutil provides test utilities for spendlens: isolated SQLite
// databases with a connected test user, and builders for transaction data.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/storage"
)

// DefaultUserID owns the connection created by SetupTestDB.
const DefaultUserID = "user-test"

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage    *storage.SQLStorage
	t          *testing.T
	UserID     string
	Connection model.Connection
}

// SetupTestDB creates a migrated temp-file database seeded with the given
// system rules and one connection for DefaultUserID. Cleanup is automatic.
//
// Example:
//
//	db := testutil.SetupTestDB(t, classification.DefaultRules()...)
//	db.MustSaveTransactions(testutil.NewTransactionBuilder(t, db.Connection.ID).
//		Debit("2024-06-01T10:00:00Z", "TESCO STORES", 12.50).
//		Build()...)
func SetupTestDB(t *testing.T, rules ...model.MerchantCategoryRule) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Rules: rules})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLStorage) error
	UserID         string
	Rules          []model.MerchantCategoryRule
	Challenges     []model.Challenge
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "spendlens.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Register cleanup
	t.Cleanup(func() {
		_ = store.Close()
	})

	userID := opts.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	db := &TestDB{Storage: store, UserID: userID, t: t}

	ctx := context.Background()
	if opts.SkipMigrations {
		return db
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(opts.Rules) > 0 {
		if _, err := store.SeedSystemRules(ctx, opts.Rules); err != nil {
			t.Fatalf("failed to seed rules: %v", err)
		}
	}

	db.Connection = model.Connection{
		UserID:    userID,
		Provider:  "test",
		AccountID: "test-account",
		Name:      "Test Current Account",
	}
	if err := store.SaveConnection(ctx, &db.Connection); err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}

	for _, c := range opts.Challenges {
		db.MustSaveChallenge(c)
	}

	// Run custom setup
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// UserContext returns a context carrying the test user.
func (db *TestDB) UserContext() context.Context {
	return common.WithUserID(context.Background(), db.UserID)
}

// MustSaveTransactions stores txns or fails the test.
func (db *TestDB) MustSaveTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to save transactions: %v", err)
	}
}

// MustSaveChallenge stores c and returns it with its assigned ID.
func (db *TestDB) MustSaveChallenge(c model.Challenge) model.Challenge {
	db.t.Helper()
	if err := db.Storage.SaveChallenge(context.Background(), &c); err != nil {
		db.t.Fatalf("failed to save challenge %q: %v", c.Name, err)
	}
	return c
}

// MustGetTransaction loads a stored transaction or fails the test.
func (db *TestDB) MustGetTransaction(id string) model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransactionByID(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %s: %v", id, err)
	}
	return *txn
}
