package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

const transactionColumns = `t.id, t.connection_id, t.booked_at, t.description, t.amount, t.currency,
	t.merchant_name, t.transaction_category, t.transaction_type, t.scheduled_date`

// SaveTransactions upserts transactions by ID. Timestamps are stored
// normalized to UTC so range filters compare correctly. An empty category
// keeps the stored one.
func (s *SQLStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (
				id, connection_id, booked_at, description, amount, currency,
				merchant_name, transaction_category, transaction_type, scheduled_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				booked_at = excluded.booked_at,
				description = excluded.description,
				amount = excluded.amount,
				currency = excluded.currency,
				merchant_name = excluded.merchant_name,
				transaction_category = COALESCE(excluded.transaction_category, transactions.transaction_category),
				transaction_type = excluded.transaction_type,
				scheduled_date = excluded.scheduled_date
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			bookedAt, _ := txn.Time()
			var scheduled sql.NullString
			if at, ok, _ := txn.ScheduledTime(); ok {
				scheduled = nullString(model.FormatTimestamp(at))
			}

			if _, err := stmt.ExecContext(ctx,
				txn.ID, txn.ConnectionID, model.FormatTimestamp(bookedAt), txn.Description,
				txn.Amount, txn.Currency, nullString(txn.MerchantName),
				nullString(txn.TransactionCategory), nullString(txn.TransactionType), scheduled,
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransactionByID retrieves a transaction by ID.
func (s *SQLStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = $1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions lists transactions matching filter ordered by booking time.
func (s *SQLStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.End, *filter.Start)
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	if filter.UserID != "" {
		query += ` JOIN connections c ON c.id = t.connection_id`
		where = append(where, "c.user_id = "+arg(filter.UserID))
	}
	if filter.ConnectionID != "" {
		where = append(where, "t.connection_id = "+arg(filter.ConnectionID))
	}
	if filter.Start != nil {
		where = append(where, "t.booked_at >= "+arg(model.FormatTimestamp(*filter.Start)))
	}
	if filter.End != nil {
		where = append(where, "t.booked_at < "+arg(model.FormatTimestamp(*filter.End)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.booked_at, t.id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET " + arg(filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                                    model.Transaction
		merchant, category, txnType, scheduled sql.NullString
	)
	if err := row.Scan(
		&txn.ID, &txn.ConnectionID, &txn.Timestamp, &txn.Description, &txn.Amount, &txn.Currency,
		&merchant, &category, &txnType, &scheduled,
	); err != nil {
		return nil, err
	}
	txn.MerchantName = merchant.String
	txn.TransactionCategory = category.String
	txn.TransactionType = txnType.String
	if scheduled.Valid {
		txn.ScheduledDate = &scheduled.String
	}
	return &txn, nil
}

// UpdateTransactionCategories sets the category of each transaction ID in
// categories in one database transaction.
func (s *SQLStorage) UpdateTransactionCategories(ctx context.Context, categories map[string]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(categories) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE transactions SET transaction_category = $1 WHERE id = $2`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for id, category := range categories {
			if _, err := stmt.ExecContext(ctx, nullString(category), id); err != nil {
				return fmt.Errorf("failed to update category of %s: %w", id, err)
			}
		}
		return nil
	})
}

// SaveConnection upserts a connection keyed by user, provider and account.
// The stored ID is written back to conn.
func (s *SQLStorage) SaveConnection(ctx context.Context, conn *model.Connection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateConnection(conn); err != nil {
		return err
	}

	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO connections (id, user_id, provider, account_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider, account_id) DO UPDATE SET name = excluded.name
		RETURNING id
	`, conn.ID, conn.UserID, conn.Provider, conn.AccountID, conn.Name, conn.CreatedAt.UTC()).Scan(&conn.ID)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// GetConnections lists the user's connections.
func (s *SQLStorage) GetConnections(ctx context.Context, userID string) ([]model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, account_id, name, created_at, last_synced
		FROM connections
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []model.Connection
	for rows.Next() {
		var c model.Connection
		var lastSynced sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.AccountID, &c.Name, &c.CreatedAt, &lastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		if lastSynced.Valid {
			t := lastSynced.Time
			c.LastSynced = &t
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// MarkConnectionSynced records the last successful sync time.
func (s *SQLStorage) MarkConnectionSynced(ctx context.Context, connectionID string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE connections SET last_synced = $1 WHERE id = $2`, at.UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to mark connection synced: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("connection %s: %w", connectionID, common.ErrNotFound)
	}
	return nil
}

// SaveBalances upserts balance snapshots keyed by connection and time.
func (s *SQLStorage) SaveBalances(ctx context.Context, balances []model.Balance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(balances) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range balances {
			if err := validateString(b.ConnectionID, "connectionID"); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO balances (connection_id, as_of, currency, current_balance, available_balance)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (connection_id, as_of) DO UPDATE SET
					currency = excluded.currency,
					current_balance = excluded.current_balance,
					available_balance = excluded.available_balance
			`, b.ConnectionID, b.AsOf.UTC(), b.Currency, b.Current, b.Available); err != nil {
				return fmt.Errorf("failed to save balance: %w", err)
			}
		}
		return nil
	})
}

// GetLatestBalances returns the most recent snapshot of each of the user's
// connections.
func (s *SQLStorage) GetLatestBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.connection_id, b.as_of, b.currency, b.current_balance, b.available_balance
		FROM balances b
		JOIN connections c ON c.id = b.connection_id
		WHERE c.user_id = $1
		AND b.as_of = (SELECT MAX(b2.as_of) FROM balances b2 WHERE b2.connection_id = b.connection_id)
		ORDER BY b.connection_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var balances []model.Balance
	for rows.Next() {
		var b model.Balance
		if err := rows.Scan(&b.ConnectionID, &b.AsOf, &b.Currency, &b.Current, &b.Available); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}
