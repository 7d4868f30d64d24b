// Package provider defines the bank data sources and the sync pass that
// feeds their transactions through categorization and challenge progress.
package provider

import (
	"context"
	"time"

	"github.com/Veraticus/spendlens/internal/model"
)

// TransactionFetcher defines the contract for fetching transaction data for
// one connected account. This interface allows for easy mocking in tests and
// swapping data sources.
type TransactionFetcher interface {
	// Name identifies the provider, e.g. "truelayer".
	Name() string
	// GetTransactions returns booked and scheduled transactions in [from, to).
	// Amounts follow the signed model: negative is an outflow.
	GetTransactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error)
	GetBalances(ctx context.Context) ([]model.Balance, error)
}
