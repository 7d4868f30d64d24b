package classification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
)

type fakeStore struct {
	userRules    map[string][]model.MerchantCategoryRule
	transactions map[string]model.Transaction
	connections  map[string][]model.Connection
	userErr      error
	systemErr    error
	overrideErr  error
	overrides    []string
	systemRules  []model.MerchantCategoryRule
	userCalls    int
	systemCalls  int
	mu           sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		userRules:    make(map[string][]model.MerchantCategoryRule),
		transactions: make(map[string]model.Transaction),
		connections:  make(map[string][]model.Connection),
	}
}

func (f *fakeStore) GetUserRules(_ context.Context, userID string) ([]model.MerchantCategoryRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.userRules[userID], nil
}

func (f *fakeStore) GetSystemRules(_ context.Context) ([]model.MerchantCategoryRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemCalls++
	if f.systemErr != nil {
		return nil, f.systemErr
	}
	return f.systemRules, nil
}

func (f *fakeStore) SeedSystemRules(_ context.Context, rules []model.MerchantCategoryRule) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemRules = append(f.systemRules, rules...)
	return len(rules), nil
}

func (f *fakeStore) ApplyCategoryOverride(_ context.Context, userID, patternKey, category string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrideErr != nil {
		return 0, f.overrideErr
	}
	f.overrides = append(f.overrides, patternKey+"="+category)

	uid := userID
	rules := f.userRules[userID]
	replaced := false
	for i := range rules {
		if rules[i].MerchantPattern == patternKey {
			rules[i].Category = category
			replaced = true
		}
	}
	if !replaced {
		rules = append(rules, model.MerchantCategoryRule{UserID: &uid, MerchantPattern: patternKey, Category: category})
	}
	f.userRules[userID] = rules

	owned := map[string]bool{}
	for _, c := range f.connections[userID] {
		owned[c.ID] = true
	}
	var updated int64
	for id, txn := range f.transactions {
		if !owned[txn.ConnectionID] {
			continue
		}
		if txn.MerchantName == patternKey || txn.Description == patternKey {
			txn.TransactionCategory = category
			f.transactions[id] = txn
			updated++
		}
	}
	return updated, nil
}

func (f *fakeStore) GetTransactionByID(_ context.Context, id string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.transactions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &txn, nil
}

func (f *fakeStore) GetConnections(_ context.Context, userID string) ([]model.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections[userID], nil
}

func TestService_LoadRules_Precedence(t *testing.T) {
	store := newFakeStore()
	uid := "user-1"
	store.userRules[uid] = []model.MerchantCategoryRule{userRule(uid, "AMAZON", "Gifts")}
	store.systemRules = []model.MerchantCategoryRule{
		systemRule("AMAZON", "Shopping"),
		systemRule("TESCO", "Groceries"),
	}

	svc := NewService(store)
	rules, err := svc.LoadRules(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Gifts", rules[0].Category)
	assert.Equal(t, "Groceries", rules[1].Category)
}

func TestService_LoadRules_BlankUser(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.LoadRules(context.Background(), "  ")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestService_LoadRules_StorageFailureNotCached(t *testing.T) {
	store := newFakeStore()
	store.systemErr = errors.New("connection reset")
	store.systemRules = []model.MerchantCategoryRule{systemRule("TESCO", "Groceries")}

	svc := NewService(store)
	_, err := svc.LoadRules(context.Background(), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorage)

	// The next call retries the load instead of using a partial cache.
	store.systemErr = nil
	out, err := svc.CategorizeBatch(context.Background(), "user-1", []model.Transaction{{Description: "TESCO EXTRA"}})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", out[0].TransactionCategory)
	assert.Equal(t, 2, store.systemCalls)
}

func TestService_CategorizeBatch_LazyLoadOnce(t *testing.T) {
	store := newFakeStore()
	store.systemRules = []model.MerchantCategoryRule{systemRule("NETFLIX", "Subscriptions")}
	svc := NewService(store)

	input := []model.Transaction{
		{ID: "t1", Description: "NETFLIX.COM"},
		{ID: "t2", Description: "CORNER SHOP", TransactionType: "DEBIT"},
	}

	for range 3 {
		out, err := svc.CategorizeBatch(context.Background(), "user-1", input)
		require.NoError(t, err)
		assert.Equal(t, "Subscriptions", out[0].TransactionCategory)
		assert.Equal(t, Uncategorized, out[1].TransactionCategory)
	}

	assert.Equal(t, 1, store.systemCalls)
	assert.Empty(t, input[0].TransactionCategory, "input must not be mutated")
}

func TestService_CategorizeTransactions(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		svc := NewService(newFakeStore())
		input := []model.Transaction{{Description: "TESCO"}}
		out, err := svc.CategorizeTransactions(context.Background(), input)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
		assert.Equal(t, input, out)
	})

	t.Run("storage failure keeps batch", func(t *testing.T) {
		store := newFakeStore()
		store.userErr = errors.New("timeout")
		svc := NewService(store)
		input := []model.Transaction{{Description: "TESCO", TransactionCategory: "previous"}}

		ctx := common.WithUserID(context.Background(), "user-1")
		out, err := svc.CategorizeTransactions(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, input, out)
	})

	t.Run("categorizes", func(t *testing.T) {
		store := newFakeStore()
		store.systemRules = []model.MerchantCategoryRule{systemRule("TESCO", "Groceries")}
		svc := NewService(store)

		ctx := common.WithUserID(context.Background(), "user-1")
		out, err := svc.CategorizeTransactions(ctx, []model.Transaction{{Description: "tesco metro"}})
		require.NoError(t, err)
		assert.Equal(t, "Groceries", out[0].TransactionCategory)
	})
}

func TestService_UpdateTransactionCategory(t *testing.T) {
	newFixture := func() (*fakeStore, *Service, context.Context) {
		store := newFakeStore()
		store.systemRules = []model.MerchantCategoryRule{systemRule("COSTA", "Dining")}
		store.connections["user-1"] = []model.Connection{{ID: "conn-1", UserID: "user-1"}}
		store.connections["user-2"] = []model.Connection{{ID: "conn-2", UserID: "user-2"}}
		store.transactions["t1"] = model.Transaction{ID: "t1", ConnectionID: "conn-1", Description: "COSTA COFFEE", MerchantName: "Costa"}
		store.transactions["t2"] = model.Transaction{ID: "t2", ConnectionID: "conn-1", Description: "CARD 1234", MerchantName: "Costa"}
		store.transactions["t3"] = model.Transaction{ID: "t3", ConnectionID: "conn-2", Description: "COSTA", MerchantName: "Costa"}
		svc := NewService(store)
		return store, svc, common.WithUserID(context.Background(), "user-1")
	}

	t.Run("override applies and reloads", func(t *testing.T) {
		store, svc, ctx := newFixture()
		_, err := svc.LoadRules(ctx, "user-1")
		require.NoError(t, err)

		updated, err := svc.UpdateTransactionCategory(ctx, "t1", "Treats")
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)
		assert.Equal(t, []string{"Costa=Treats"}, store.overrides)
		assert.Empty(t, store.transactions["t3"].TransactionCategory)

		out, err := svc.CategorizeBatch(ctx, "user-1", []model.Transaction{{Description: "X", MerchantName: "costa"}})
		require.NoError(t, err)
		assert.Equal(t, "Treats", out[0].TransactionCategory)
		assert.Equal(t, 2, store.userCalls)
	})

	t.Run("missing user", func(t *testing.T) {
		_, svc, _ := newFixture()
		_, err := svc.UpdateTransactionCategory(context.Background(), "t1", "Treats")
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("empty category", func(t *testing.T) {
		_, svc, ctx := newFixture()
		_, err := svc.UpdateTransactionCategory(ctx, "t1", " ")
		assert.ErrorIs(t, err, common.ErrInvalidOperation)
		var userErr *common.UserError
		assert.ErrorAs(t, err, &userErr)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, svc, ctx := newFixture()
		_, err := svc.UpdateTransactionCategory(ctx, "missing", "Treats")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("another user's transaction", func(t *testing.T) {
		store, svc, ctx := newFixture()
		_, err := svc.UpdateTransactionCategory(ctx, "t3", "Treats")
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.Empty(t, store.overrides)
	})

	t.Run("override failure", func(t *testing.T) {
		store, svc, ctx := newFixture()
		store.overrideErr = errors.New("deadlock")
		_, err := svc.UpdateTransactionCategory(ctx, "t1", "Treats")
		assert.ErrorIs(t, err, common.ErrStorage)
	})
}
