package classification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

// Store is the persistence surface the categorization service needs.
type Store interface {
	service.RuleStore
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetConnections(ctx context.Context, userID string) ([]model.Connection, error)
}

// Service keeps a per-user, precedence-resolved rule cache and applies it to
// transaction batches. A missing cache entry is loaded lazily on first use;
// LoadRules always rebuilds the entry from scratch.
type Service struct {
	store  Store
	logger *slog.Logger
	cache  map[string]*Index
	// reloadMu serializes reloads so two writers never interleave.
	reloadMu sync.Mutex
	mu       sync.RWMutex
}

// NewService creates a categorization service backed by store.
func NewService(store Store) *Service {
	return &Service{
		store:  store,
		logger: common.ComponentLogger("classification"),
		cache:  make(map[string]*Index),
	}
}

// LoadRules fetches the user's and the system's rules, resolves precedence and
// replaces the cached rule set. Nothing is cached when either read fails.
func (s *Service) LoadRules(ctx context.Context, userID string) ([]model.MerchantCategoryRule, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.ErrUnauthorized
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	userRules, err := s.store.GetUserRules(ctx, userID)
	if err != nil {
		return nil, common.StorageError("failed to load user rules", err)
	}
	systemRules, err := s.store.GetSystemRules(ctx)
	if err != nil {
		return nil, common.StorageError("failed to load system rules", err)
	}

	idx := NewIndex(ResolvePrecedence(userRules, systemRules))

	s.mu.Lock()
	s.cache[userID] = idx
	s.mu.Unlock()

	s.logger.Debug("Loaded category rules",
		"user_id", userID,
		"user_rules", len(userRules),
		"system_rules", len(systemRules),
		"effective_rules", idx.Len())

	return idx.Rules(), nil
}

// Invalidate drops the cached rule set for userID.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

func (s *Service) index(ctx context.Context, userID string) (*Index, error) {
	s.mu.RLock()
	idx, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	if _, err := s.LoadRules(ctx, userID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[userID], nil
}

// CategorizeBatch returns copies of transactions with TransactionCategory
// overwritten from the user's rule set, loading it first if needed.
func (s *Service) CategorizeBatch(ctx context.Context, userID string, transactions []model.Transaction) ([]model.Transaction, error) {
	idx, err := s.index(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]model.Transaction, len(transactions))
	for i, txn := range transactions {
		txn.TransactionCategory = idx.Categorize(txn)
		out[i] = txn
	}
	return out, nil
}

// CategorizeTransactions is the best-effort variant used during sync: if the
// rules cannot be loaded the original batch is returned unchanged. Only a
// missing user is reported as an error.
func (s *Service) CategorizeTransactions(ctx context.Context, transactions []model.Transaction) ([]model.Transaction, error) {
	userID, err := common.UserIDFromContext(ctx)
	if err != nil {
		return transactions, err
	}

	categorized, err := s.CategorizeBatch(ctx, userID, transactions)
	if err != nil {
		s.logger.Warn("Categorization skipped, keeping existing categories",
			"user_id", userID,
			"transactions", len(transactions),
			"error", err)
		return transactions, nil
	}
	return categorized, nil
}

// UpdateTransactionCategory records a user override for the transaction's
// merchant (or description), moves every matching transaction of the user to
// newCategory and reloads the rule cache. It returns the number of
// transactions updated.
func (s *Service) UpdateTransactionCategory(ctx context.Context, transactionID, newCategory string) (int64, error) {
	userID, err := common.UserIDFromContext(ctx)
	if err != nil {
		return 0, err
	}

	newCategory = strings.TrimSpace(newCategory)
	if newCategory == "" {
		return 0, common.NewUserError("category cannot be empty", common.ErrInvalidOperation)
	}

	txn, err := s.store.GetTransactionByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
		}
		return 0, common.StorageError("failed to load transaction", err)
	}

	owned, err := s.ownsConnection(ctx, userID, txn.ConnectionID)
	if err != nil {
		return 0, err
	}
	if !owned {
		return 0, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}

	key := txn.PatternKey()
	if strings.TrimSpace(key) == "" {
		return 0, common.NewUserError("transaction has no merchant name or description", common.ErrInvalidOperation)
	}

	updated, err := s.store.ApplyCategoryOverride(ctx, userID, key, newCategory)
	if err != nil {
		return 0, common.StorageError("failed to apply category override", err)
	}

	s.logger.Info("Applied category override",
		"user_id", userID,
		"pattern", key,
		"category", newCategory,
		"transactions_updated", updated)

	if _, err := s.LoadRules(ctx, userID); err != nil {
		// The override is committed; a stale cache is dropped so the next
		// batch reloads it.
		s.Invalidate(userID)
		return updated, err
	}

	return updated, nil
}

func (s *Service) ownsConnection(ctx context.Context, userID, connectionID string) (bool, error) {
	conns, err := s.store.GetConnections(ctx, userID)
	if err != nil {
		return false, common.StorageError("failed to load connections", err)
	}
	for _, c := range conns {
		if c.ID == connectionID {
			return true, nil
		}
	}
	return false, nil
}
