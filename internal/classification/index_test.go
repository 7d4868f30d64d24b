package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/spendlens/internal/model"
)

func userRule(userID, pattern, category string) model.MerchantCategoryRule {
	return model.MerchantCategoryRule{UserID: &userID, MerchantPattern: pattern, Category: category}
}

func systemRule(pattern, category string) model.MerchantCategoryRule {
	return model.MerchantCategoryRule{MerchantPattern: pattern, Category: category}
}

func TestCategorize(t *testing.T) {
	rules := []model.MerchantCategoryRule{
		systemRule("tesco|sainsbury", "Groceries"),
		systemRule("NETFLIX", "Subscriptions"),
	}

	tests := []struct {
		name string
		want string
		txn  model.Transaction
	}{
		{
			name: "description match is case insensitive",
			txn:  model.Transaction{Description: "Tesco Stores 2231"},
			want: "Groceries",
		},
		{
			name: "second alternative matches",
			txn:  model.Transaction{Description: "CARD PAYMENT SAINSBURYS S/MKTS"},
			want: "Groceries",
		},
		{
			name: "merchant name match",
			txn:  model.Transaction{Description: "CARD 4421", MerchantName: "Netflix"},
			want: "Subscriptions",
		},
		{
			name: "type fallback",
			txn:  model.Transaction{Description: "Mystery", TransactionType: "scheduled"},
			want: "scheduled",
		},
		{
			name: "debit is not a fallback category",
			txn:  model.Transaction{Description: "Mystery", TransactionType: "debit"},
			want: Uncategorized,
		},
		{
			name: "credit is not a fallback category",
			txn:  model.Transaction{Description: "Mystery", TransactionType: "CREDIT"},
			want: Uncategorized,
		},
		{
			name: "no type hint",
			txn:  model.Transaction{Description: "Mystery"},
			want: Uncategorized,
		},
		{
			name: "empty texts never match",
			txn:  model.Transaction{TransactionType: "STANDING_ORDER"},
			want: "STANDING_ORDER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.txn, rules))
		})
	}
}

func TestCategorize_FirstMatchWins(t *testing.T) {
	txn := model.Transaction{Description: "AMAZON MARKETPLACE REFUND"}

	refundsFirst := []model.MerchantCategoryRule{
		systemRule("REFUND", "Refunds"),
		systemRule("AMAZON", "Shopping"),
	}
	shoppingFirst := []model.MerchantCategoryRule{
		systemRule("AMAZON", "Shopping"),
		systemRule("REFUND", "Refunds"),
	}

	assert.Equal(t, "Refunds", Categorize(txn, refundsFirst))
	assert.Equal(t, "Shopping", Categorize(txn, shoppingFirst))
}

func TestCategorize_EmptyAlternativesIgnored(t *testing.T) {
	rules := []model.MerchantCategoryRule{systemRule("|", "Everything")}
	assert.Equal(t, Uncategorized, Categorize(model.Transaction{Description: "anything"}, rules))
}

func TestSubstringMatcher_NoRegexSemantics(t *testing.T) {
	m := NewSubstringMatcher("APPLE.COM/BILL|B&Q")
	assert.True(t, m.Match("APPLE.COM/BILL ITUNES"))
	assert.False(t, m.Match("APPLEXCOM/BILL"))
	assert.True(t, m.Match("", "B&Q WAREHOUSE"))
}

func TestResolvePrecedence(t *testing.T) {
	user := []model.MerchantCategoryRule{
		userRule("u1", "AMAZON", "Gifts"),
		userRule("u1", "GYM", "Health"),
	}
	system := []model.MerchantCategoryRule{
		systemRule("TESCO", "Groceries"),
		systemRule("AMAZON", "Shopping"),
		systemRule("TESCO", "Duplicate"),
	}

	got := ResolvePrecedence(user, system)

	var patterns, categories []string
	for _, r := range got {
		patterns = append(patterns, r.MerchantPattern)
		categories = append(categories, r.Category)
	}
	assert.Equal(t, []string{"AMAZON", "GYM", "TESCO"}, patterns)
	assert.Equal(t, []string{"Gifts", "Health", "Groceries"}, categories)
	assert.False(t, got[0].IsSystem())
	assert.True(t, got[2].IsSystem())
}

func TestDefaultRules_UniquePatterns(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range DefaultRules() {
		assert.NotEmpty(t, r.Category)
		assert.False(t, seen[r.MerchantPattern], "duplicate pattern %q", r.MerchantPattern)
		seen[r.MerchantPattern] = true
		assert.True(t, r.IsSystem())
	}

	idx := NewIndex(DefaultRules())
	assert.Equal(t, CategoryRefunds, idx.Categorize(model.Transaction{Description: "AMAZON REFUND 123"}))
	assert.Equal(t, CategoryGroceries, idx.Categorize(model.Transaction{Description: "TESCO STORES 6246"}))
}
