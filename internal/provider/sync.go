package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spendlens/internal/challenge"
	"github.com/Veraticus/spendlens/internal/classification"
	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
)

// Store is the persistence surface a sync writes to.
type Store interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	SaveBalances(ctx context.Context, balances []model.Balance) error
	MarkConnectionSynced(ctx context.Context, connectionID string, at time.Time) error
}

// Categorizer assigns categories to a fetched batch. It reads the user from
// the context.
type Categorizer interface {
	CategorizeTransactions(ctx context.Context, transactions []model.Transaction) ([]model.Transaction, error)
}

// ProgressUpdater advances the user's challenges with a new batch.
type ProgressUpdater interface {
	UpdateChallengeProgress(ctx context.Context, userID string, transactions []model.Transaction) (*challenge.UpdateResult, error)
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Challenges   *challenge.UpdateResult
	SyncedAt     time.Time
	Provider     string
	Transactions int
	Balances     int
	Categorized  int
}

// SyncService pulls a provider's data into storage.
type SyncService struct {
	fetcher     TransactionFetcher
	store       Store
	categorizer Categorizer
	progress    ProgressUpdater
	clock       clock.Clock
	logger      *slog.Logger
}

// NewSyncService creates a sync service. progress may be nil to skip
// challenge updates.
func NewSyncService(fetcher TransactionFetcher, store Store, categorizer Categorizer, progress ProgressUpdater, c clock.Clock) *SyncService {
	return &SyncService{
		fetcher:     fetcher,
		store:       store,
		categorizer: categorizer,
		progress:    progress,
		clock:       clock.OrReal(c),
		logger:      common.ComponentLogger("sync").With("provider", fetcher.Name()),
	}
}

// Sync fetches transactions in [from, to) and the current balances for
// connectionID, categorizes and stores them, and then feeds the batch to the
// user's challenges. A challenge failure is reported alongside the result;
// the stored data is kept.
func (s *SyncService) Sync(ctx context.Context, userID, connectionID string, from, to time.Time) (*SyncResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.ErrUnauthorized
	}
	if strings.TrimSpace(connectionID) == "" {
		return nil, fmt.Errorf("%w: connection ID is required", common.ErrInvalidOperation)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: sync window end must be after start", common.ErrInvalidOperation)
	}
	ctx = common.WithUserID(ctx, userID)

	s.logger.Info("Starting sync",
		"user_id", userID,
		"connection_id", connectionID,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"))

	fetched, err := s.fetcher.GetTransactions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %s transactions: %w", common.ErrProviderConnection, s.fetcher.Name(), err)
	}
	for i := range fetched {
		fetched[i].ConnectionID = connectionID
	}

	result := &SyncResult{Provider: s.fetcher.Name(), Transactions: len(fetched)}

	if len(fetched) > 0 {
		categorized, err := s.categorizer.CategorizeTransactions(ctx, fetched)
		if err != nil {
			return nil, err
		}
		for _, txn := range categorized {
			if txn.TransactionCategory != "" && txn.TransactionCategory != classification.Uncategorized {
				result.Categorized++
			}
		}
		fetched = categorized

		if err := s.store.SaveTransactions(ctx, fetched); err != nil {
			return nil, common.StorageError("failed to save synced transactions", err)
		}
	}

	balances, err := s.fetcher.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s balances: %w", common.ErrProviderConnection, s.fetcher.Name(), err)
	}
	now := s.clock.Now()
	for i := range balances {
		balances[i].ConnectionID = connectionID
		if balances[i].AsOf.IsZero() {
			balances[i].AsOf = now
		}
	}
	if err := s.store.SaveBalances(ctx, balances); err != nil {
		return nil, common.StorageError("failed to save balances", err)
	}
	result.Balances = len(balances)

	if err := s.store.MarkConnectionSynced(ctx, connectionID, now); err != nil {
		return nil, common.StorageError("failed to mark connection synced", err)
	}
	result.SyncedAt = now

	s.logger.Info("Sync stored",
		"transactions", result.Transactions,
		"categorized", result.Categorized,
		"balances", result.Balances)

	if s.progress == nil || len(fetched) == 0 {
		return result, nil
	}

	updates, err := s.progress.UpdateChallengeProgress(ctx, userID, fetched)
	result.Challenges = updates
	if err != nil {
		return result, fmt.Errorf("challenge progress: %w", err)
	}
	return result, nil
}
