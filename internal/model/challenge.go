package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChallengeStatus is the lifecycle state of a user's challenge.
type ChallengeStatus string

const (
	// ChallengeActive is the only non-terminal state.
	ChallengeActive ChallengeStatus = "active"
	// ChallengeCompleted is terminal; rewards have been issued.
	ChallengeCompleted ChallengeStatus = "completed"
	// ChallengeFailed is terminal; no reward.
	ChallengeFailed ChallengeStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s ChallengeStatus) IsTerminal() bool {
	return s == ChallengeCompleted || s == ChallengeFailed
}

// Challenge is a catalog definition.
type Challenge struct {
	Criteria    Criteria
	ID          string
	Name        string
	Description string
	RewardBadge string // Empty when no badge is awarded
	RewardXP    int
	Active      bool
}

// UserChallenge is one user's attempt at a challenge.
type UserChallenge struct {
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    Progress
	ID          string
	UserID      string
	ChallengeID string
	Status      ChallengeStatus
	Streak      int
}

// Progress is the evaluator-defined state of a user challenge.
type Progress map[string]any

// Clone returns a shallow copy safe to mutate.
func (p Progress) Clone() Progress {
	out := make(Progress, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float returns a numeric entry, accepting the shapes JSON decoding produces.
func (p Progress) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns a numeric entry truncated to int.
func (p Progress) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	return int(f), ok
}

// String returns a string entry.
func (p Progress) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// CriteriaType tags the Criteria variants.
type CriteriaType string

// Known criteria types.
const (
	CriteriaNoSpend           CriteriaType = "no_spend"
	CriteriaReducedSpending   CriteriaType = "reduced_spending"
	CriteriaSpendingReduction CriteriaType = "spending_reduction"
	CriteriaSavings           CriteriaType = "savings"
	CriteriaStreak            CriteriaType = "streak"
	CriteriaCategoryBudget    CriteriaType = "category_budget"
	CriteriaSmartShopping     CriteriaType = "smart_shopping"
)

// Criteria is the closed set of challenge rules. Each variant carries its own
// strongly typed fields.
type Criteria interface {
	Type() CriteriaType
	isCriteria()
}

// NoSpendCriteria caps total outflow since the challenge started.
type NoSpendCriteria struct {
	ExcludeCategories []string `json:"exclude_categories,omitempty"`
	MaxSpend          float64  `json:"max_spend"`
}

// ReducedSpendingCriteria caps spend in one category during a daily clock window.
type ReducedSpendingCriteria struct {
	Category   string  `json:"category"`
	TimeWindow string  `json:"time_window"` // "HH:MM-HH:MM"
	MaxSpend   float64 `json:"max_spend"`
}

// SpendingReductionCriteria requires weekend spend to drop against a baseline.
type SpendingReductionCriteria struct {
	ReductionTarget float64 `json:"reduction_target"` // Fraction, 0.2 = 20%
	MinTransactions int     `json:"min_transactions"`
	BaselineWeeks   int     `json:"baseline_weeks,omitempty"`
}

// SavingsCriteria requires total inflow to reach a target.
type SavingsCriteria struct {
	Target float64 `json:"target"`
}

// StreakCriteria requires consecutive daily check-ins.
type StreakCriteria struct {
	Days int `json:"days"`
}

// CategoryBudgetCriteria requires every budgeted category to stay within its limit.
type CategoryBudgetCriteria struct{}

// SmartShoppingCriteria rewards collecting refunds.
type SmartShoppingCriteria struct {
	TargetSavings   float64 `json:"target_savings"`
	MinTransactions int     `json:"min_transactions"`
}

// UnknownCriteria preserves a criteria type this build does not understand.
type UnknownCriteria struct {
	Kind CriteriaType
	Raw  json.RawMessage
}

func (NoSpendCriteria) Type() CriteriaType           { return CriteriaNoSpend }
func (ReducedSpendingCriteria) Type() CriteriaType   { return CriteriaReducedSpending }
func (SpendingReductionCriteria) Type() CriteriaType { return CriteriaSpendingReduction }
func (SavingsCriteria) Type() CriteriaType           { return CriteriaSavings }
func (StreakCriteria) Type() CriteriaType            { return CriteriaStreak }
func (CategoryBudgetCriteria) Type() CriteriaType    { return CriteriaCategoryBudget }
func (SmartShoppingCriteria) Type() CriteriaType     { return CriteriaSmartShopping }
func (c UnknownCriteria) Type() CriteriaType         { return c.Kind }

func (NoSpendCriteria) isCriteria()           {}
func (ReducedSpendingCriteria) isCriteria()   {}
func (SpendingReductionCriteria) isCriteria() {}
func (SavingsCriteria) isCriteria()           {}
func (StreakCriteria) isCriteria()            {}
func (CategoryBudgetCriteria) isCriteria()    {}
func (SmartShoppingCriteria) isCriteria()     {}
func (UnknownCriteria) isCriteria()           {}

// DecodeCriteria parses the stored JSON form, dispatching on its "type" field.
func DecodeCriteria(data []byte) (Criteria, error) {
	var head struct {
		Type CriteriaType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode criteria: %w", err)
	}

	var (
		c   Criteria
		err error
	)
	switch head.Type {
	case CriteriaNoSpend:
		c, err = decodeVariant[NoSpendCriteria](data)
	case CriteriaReducedSpending:
		c, err = decodeVariant[ReducedSpendingCriteria](data)
	case CriteriaSpendingReduction:
		c, err = decodeVariant[SpendingReductionCriteria](data)
	case CriteriaSavings:
		c, err = decodeVariant[SavingsCriteria](data)
	case CriteriaStreak:
		c, err = decodeVariant[StreakCriteria](data)
	case CriteriaCategoryBudget:
		c = CategoryBudgetCriteria{}
	case CriteriaSmartShopping:
		c, err = decodeVariant[SmartShoppingCriteria](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		c = UnknownCriteria{Kind: head.Type, Raw: raw}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s criteria: %w", head.Type, err)
	}
	return c, nil
}

func decodeVariant[T Criteria](data []byte) (Criteria, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeCriteria renders c in the stored JSON form, including its type tag.
func EncodeCriteria(c Criteria) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("criteria is required")
	}
	if u, ok := c.(UnknownCriteria); ok {
		return u.Raw, nil
	}

	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}
	tag, err := json.Marshal(c.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
