package ofx

import (
	"context"
	"time"

	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/provider"
)

// ProviderName identifies connections imported from files.
const ProviderName = "ofx"

// StatementFetcher serves a parsed statement as a provider so imports go
// through the same sync pass as live providers.
type StatementFetcher struct {
	statement Statement
}

// Ensure StatementFetcher implements provider.TransactionFetcher.
var _ provider.TransactionFetcher = (*StatementFetcher)(nil)

// NewStatementFetcher wraps s.
func NewStatementFetcher(s Statement) *StatementFetcher {
	return &StatementFetcher{statement: s}
}

// Name implements provider.TransactionFetcher.
func (f *StatementFetcher) Name() string {
	return ProviderName
}

// GetTransactions returns the statement's transactions booked in [from, to).
func (f *StatementFetcher) GetTransactions(_ context.Context, from, to time.Time) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0, len(f.statement.Transactions))
	for _, txn := range f.statement.Transactions {
		ts, err := txn.Time()
		if err != nil {
			return nil, err
		}
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

// GetBalances returns the statement's closing balance, if any.
func (f *StatementFetcher) GetBalances(context.Context) ([]model.Balance, error) {
	if f.statement.Balance == nil {
		return []model.Balance{}, nil
	}
	return []model.Balance{*f.statement.Balance}, nil
}
