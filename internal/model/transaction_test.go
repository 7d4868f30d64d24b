package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		want    time.Time
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "rfc3339 with offset",
			input: "2024-01-15T10:30:00+01:00",
			want:  time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 nano",
			input: "2024-01-15T10:30:00.123Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 123000000, time.UTC),
		},
		{
			name:  "no offset",
			input: "2024-01-15T10:30:00",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "date only",
			input: "2024-01-15",
			want:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{name: "garbage", input: "last tuesday", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestTransaction_ScheduledTime(t *testing.T) {
	txn := Transaction{}
	_, ok, err := txn.ScheduledTime()
	assert.False(t, ok)
	assert.NoError(t, err)

	txn.ScheduledDate = StringPtr("2024-05-01")
	ts, ok, err := txn.ScheduledTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	txn.ScheduledDate = StringPtr("soon")
	_, ok, err = txn.ScheduledTime()
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestTransaction_PatternKey(t *testing.T) {
	assert.Equal(t, "Tesco", Transaction{MerchantName: "Tesco", Description: "TESCO STORES 123"}.PatternKey())
	assert.Equal(t, "TESCO STORES 123", Transaction{Description: "TESCO STORES 123"}.PatternKey())
	assert.Equal(t, "CARD 99", Transaction{MerchantName: "  ", Description: "CARD 99"}.PatternKey())
}

func TestMerchantCategoryRule_Alternatives(t *testing.T) {
	rule := MerchantCategoryRule{MerchantPattern: "tesco|Sainsbury||aldi"}
	assert.Equal(t, []string{"TESCO", "SAINSBURY", "ALDI"}, rule.Alternatives())
	assert.True(t, rule.IsSystem())

	owner := "user-1"
	rule.UserID = &owner
	assert.False(t, rule.IsSystem())
}
