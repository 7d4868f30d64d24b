package challenge

import (
	"context"
	"maps"

	"github.com/Veraticus/spendlens/internal/common"
)

// BudgetPolicy supplies the per-category spending limits used by category
// budget challenges.
type BudgetPolicy interface {
	Budgets(ctx context.Context, userID string) (map[string]float64, error)
}

// StaticBudgets applies the same limits to every user.
type StaticBudgets map[string]float64

// DefaultBudgets returns the built-in monthly limits.
func DefaultBudgets() StaticBudgets {
	return StaticBudgets{
		"Groceries":     400,
		"Dining":        200,
		"Entertainment": 150,
		"Shopping":      300,
		"Transport":     150,
	}
}

// Budgets returns a copy of the static table.
func (b StaticBudgets) Budgets(context.Context, string) (map[string]float64, error) {
	return maps.Clone(map[string]float64(b)), nil
}

// BudgetReader is the storage surface StorageBudgets reads from.
type BudgetReader interface {
	GetCategoryBudgets(ctx context.Context, userID string) (map[string]float64, error)
}

// StorageBudgets overlays a user's stored limits on a default table.
type StorageBudgets struct {
	store    BudgetReader
	defaults StaticBudgets
}

// NewStorageBudgets creates a policy backed by store. A nil defaults table
// means DefaultBudgets.
func NewStorageBudgets(store BudgetReader, defaults StaticBudgets) *StorageBudgets {
	if defaults == nil {
		defaults = DefaultBudgets()
	}
	return &StorageBudgets{store: store, defaults: defaults}
}

// Budgets returns the defaults with the user's rows applied on top.
func (b *StorageBudgets) Budgets(ctx context.Context, userID string) (map[string]float64, error) {
	stored, err := b.store.GetCategoryBudgets(ctx, userID)
	if err != nil {
		return nil, common.StorageError("failed to load category budgets", err)
	}
	out := maps.Clone(map[string]float64(b.defaults))
	if out == nil {
		out = make(map[string]float64, len(stored))
	}
	maps.Copy(out, stored)
	return out, nil
}
