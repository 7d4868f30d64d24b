// Package classification resolves bank transactions to spending categories
// using merchant-pattern rules, with user rules taking precedence over
// system defaults.
package classification

import (
	"strings"

	"github.com/Veraticus/spendlens/internal/model"
)

// Uncategorized is returned when no rule and no type hint applies.
const Uncategorized = "Uncategorized"

// SubstringMatcher matches when any of its upper-cased alternatives is
// contained in a candidate text. It never interprets regular expression syntax.
type SubstringMatcher []string

// NewSubstringMatcher builds a matcher from a |-delimited merchant pattern.
func NewSubstringMatcher(pattern string) SubstringMatcher {
	return SubstringMatcher(model.MerchantCategoryRule{MerchantPattern: pattern}.Alternatives())
}

// Match reports whether any alternative occurs in one of the upper-cased texts.
// Empty texts never match.
func (m SubstringMatcher) Match(texts ...string) bool {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, alt := range m {
			if strings.Contains(text, alt) {
				return true
			}
		}
	}
	return false
}

type indexedRule struct {
	category string
	matcher  SubstringMatcher
}

// Index is an immutable, ordered rule set. The first matching rule wins, so
// order must be preserved from load time.
type Index struct {
	rules []model.MerchantCategoryRule
	index []indexedRule
}

// NewIndex compiles rules in the given order.
func NewIndex(rules []model.MerchantCategoryRule) *Index {
	idx := &Index{
		rules: make([]model.MerchantCategoryRule, len(rules)),
		index: make([]indexedRule, 0, len(rules)),
	}
	copy(idx.rules, rules)
	for _, r := range rules {
		idx.index = append(idx.index, indexedRule{
			category: r.Category,
			matcher:  NewSubstringMatcher(r.MerchantPattern),
		})
	}
	return idx
}

// Len returns the number of rules.
func (idx *Index) Len() int {
	return len(idx.index)
}

// Rules returns a copy of the ordered rule set.
func (idx *Index) Rules() []model.MerchantCategoryRule {
	out := make([]model.MerchantCategoryRule, len(idx.rules))
	copy(out, idx.rules)
	return out
}

// Categorize resolves one transaction to a category name.
func (idx *Index) Categorize(txn model.Transaction) string {
	description := strings.ToUpper(txn.Description)
	merchant := strings.ToUpper(txn.MerchantName)

	for _, r := range idx.index {
		if r.matcher.Match(description, merchant) {
			return r.category
		}
	}

	return fallbackCategory(txn.TransactionType)
}

// Categorize resolves one transaction against an ordered rule set.
func Categorize(txn model.Transaction, rules []model.MerchantCategoryRule) string {
	return NewIndex(rules).Categorize(txn)
}

// fallbackCategory uses the provider's type hint unless it is the generic
// credit/debit pair.
func fallbackCategory(transactionType string) string {
	if transactionType == "" {
		return Uncategorized
	}
	switch strings.ToUpper(transactionType) {
	case "CREDIT", "DEBIT":
		return Uncategorized
	}
	return transactionType
}

// ResolvePrecedence merges user and system rules: user rules first, then every
// system rule whose pattern string is not already defined by a user rule.
func ResolvePrecedence(userRules, systemRules []model.MerchantCategoryRule) []model.MerchantCategoryRule {
	seen := make(map[string]struct{}, len(userRules))
	combined := make([]model.MerchantCategoryRule, 0, len(userRules)+len(systemRules))

	for _, r := range userRules {
		if _, dup := seen[r.MerchantPattern]; dup {
			continue
		}
		seen[r.MerchantPattern] = struct{}{}
		combined = append(combined, r)
	}
	for _, r := range systemRules {
		if _, dup := seen[r.MerchantPattern]; dup {
			continue
		}
		seen[r.MerchantPattern] = struct{}{}
		combined = append(combined, r)
	}

	return combined
}
