package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCriteria(t *testing.T) {
	tests := []struct {
		want    Criteria
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "no spend",
			input: `{"type":"no_spend","max_spend":25.5,"exclude_categories":["Bills"]}`,
			want:  NoSpendCriteria{MaxSpend: 25.5, ExcludeCategories: []string{"Bills"}},
		},
		{
			name:  "reduced spending",
			input: `{"type":"reduced_spending","category":"Dining","time_window":"22:00-02:00","max_spend":10}`,
			want:  ReducedSpendingCriteria{Category: "Dining", TimeWindow: "22:00-02:00", MaxSpend: 10},
		},
		{
			name:  "spending reduction",
			input: `{"type":"spending_reduction","reduction_target":0.2,"min_transactions":3}`,
			want:  SpendingReductionCriteria{ReductionTarget: 0.2, MinTransactions: 3},
		},
		{
			name:  "savings",
			input: `{"type":"savings","target":500}`,
			want:  SavingsCriteria{Target: 500},
		},
		{
			name:  "streak",
			input: `{"type":"streak","days":7}`,
			want:  StreakCriteria{Days: 7},
		},
		{
			name:  "category budget",
			input: `{"type":"category_budget"}`,
			want:  CategoryBudgetCriteria{},
		},
		{
			name:  "smart shopping",
			input: `{"type":"smart_shopping","target_savings":50,"min_transactions":2}`,
			want:  SmartShoppingCriteria{TargetSavings: 50, MinTransactions: 2},
		},
		{
			name:    "malformed",
			input:   `{"type":`,
			wantErr: true,
		},
		{
			name:    "wrong field type",
			input:   `{"type":"savings","target":"lots"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCriteria([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCriteria_Unknown(t *testing.T) {
	input := `{"type":"moon_landing","distance":384400}`

	got, err := DecodeCriteria([]byte(input))
	require.NoError(t, err)

	unknown, ok := got.(UnknownCriteria)
	require.True(t, ok)
	assert.Equal(t, CriteriaType("moon_landing"), unknown.Type())

	encoded, err := EncodeCriteria(got)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(encoded))
}

func TestEncodeCriteria_IncludesType(t *testing.T) {
	encoded, err := EncodeCriteria(StreakCriteria{Days: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"streak","days":5}`, string(encoded))

	decoded, err := DecodeCriteria(encoded)
	require.NoError(t, err)
	assert.Equal(t, StreakCriteria{Days: 5}, decoded)

	_, err = EncodeCriteria(nil)
	assert.Error(t, err)
}

func TestProgressAccessors(t *testing.T) {
	var decoded Progress
	require.NoError(t, json.Unmarshal([]byte(`{"streak_count":3,"total_spent":12.5,"last_streak_date":"2024-03-01"}`), &decoded))

	count, ok := decoded.Int("streak_count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	spent, ok := decoded.Float("total_spent")
	assert.True(t, ok)
	assert.InDelta(t, 12.5, spent, 1e-9)

	date, ok := decoded.String("last_streak_date")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-01", date)

	_, ok = decoded.Float("missing")
	assert.False(t, ok)

	clone := decoded.Clone()
	clone["streak_count"] = 9
	n, _ := decoded.Int("streak_count")
	assert.Equal(t, 3, n)
}

func TestChallengeStatus_IsTerminal(t *testing.T) {
	assert.False(t, ChallengeActive.IsTerminal())
	assert.True(t, ChallengeCompleted.IsTerminal())
	assert.True(t, ChallengeFailed.IsTerminal())
}
