package provider

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/spendlens/internal/model"
)

// MockFetcher is a TransactionFetcher whose behavior tests control.
type MockFetcher struct {
	// Functions that can be set by tests to control behavior
	GetTransactionsFn func(ctx context.Context, from, to time.Time) ([]model.Transaction, error)
	GetBalancesFn     func(ctx context.Context) ([]model.Balance, error)

	ProviderName string

	mu sync.Mutex
	// Call tracking
	GetTransactionsCalls []GetTransactionsCall
	GetBalancesCalls     int
}

// GetTransactionsCall records the parameters of a GetTransactions call.
type GetTransactionsCall struct {
	From time.Time
	To   time.Time
}

// Ensure MockFetcher implements TransactionFetcher.
var _ TransactionFetcher = (*MockFetcher)(nil)

// Name implements TransactionFetcher.
func (m *MockFetcher) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// GetTransactions implements TransactionFetcher.
func (m *MockFetcher) GetTransactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	m.GetTransactionsCalls = append(m.GetTransactionsCalls, GetTransactionsCall{From: from, To: to})
	m.mu.Unlock()

	if m.GetTransactionsFn != nil {
		return m.GetTransactionsFn(ctx, from, to)
	}
	return []model.Transaction{}, nil
}

// GetBalances implements TransactionFetcher.
func (m *MockFetcher) GetBalances(ctx context.Context) ([]model.Balance, error) {
	m.mu.Lock()
	m.GetBalancesCalls++
	m.mu.Unlock()

	if m.GetBalancesFn != nil {
		return m.GetBalancesFn(ctx)
	}
	return []model.Balance{}, nil
}
