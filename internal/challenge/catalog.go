package challenge

import "github.com/Veraticus/spendlens/internal/model"

// DefaultCatalog returns the built-in challenges seeded on migration. IDs are
// stable so reseeding updates definitions in place.
func DefaultCatalog() []model.Challenge {
	return []model.Challenge{
		{
			ID:          "no-spend-week",
			Name:        "No Spend Week",
			Description: "Spend nothing outside bills for seven days.",
			Criteria:    model.NoSpendCriteria{MaxSpend: 0, ExcludeCategories: []string{"Bills", "Transfers"}},
			RewardXP:    150,
			RewardBadge: "no_spend_hero",
			Active:      true,
		},
		{
			ID:          "late-night-snacks",
			Name:        "Late Night Discipline",
			Description: "Keep late-night takeaway under 20 between 22:00 and 02:00.",
			Criteria:    model.ReducedSpendingCriteria{Category: "Dining", TimeWindow: "22:00-02:00", MaxSpend: 20},
			RewardXP:    75,
			Active:      true,
		},
		{
			ID:          "weekend-warrior",
			Name:        "Weekend Warrior",
			Description: "Cut weekend spending by 20% against your last four weeks.",
			Criteria:    model.SpendingReductionCriteria{ReductionTarget: 0.2, MinTransactions: 3, BaselineWeeks: 4},
			RewardXP:    100,
			RewardBadge: "weekend_warrior",
			Active:      true,
		},
		{
			ID:          "first-savings",
			Name:        "First Savings",
			Description: "Receive 100 in deposits since starting.",
			Criteria:    model.SavingsCriteria{Target: 100},
			RewardXP:    50,
			RewardBadge: "first_savings",
			Active:      true,
		},
		{
			ID:          "check-in-streak",
			Name:        "Seven Day Check-in",
			Description: "Check your spending every day for a week.",
			Criteria:    model.StreakCriteria{Days: 7},
			RewardXP:    70,
			RewardBadge: "streak_keeper",
			Active:      true,
		},
		{
			ID:          "budget-master",
			Name:        "Budget Master",
			Description: "Stay within every category budget.",
			Criteria:    model.CategoryBudgetCriteria{},
			RewardXP:    200,
			RewardBadge: "budget_master",
			Active:      true,
		},
		{
			ID:          "smart-shopper",
			Name:        "Smart Shopper",
			Description: "Collect 25 in refunds and cashback.",
			Criteria:    model.SmartShoppingCriteria{TargetSavings: 25, MinTransactions: 2},
			RewardXP:    60,
			Active:      true,
		},
	}
}
