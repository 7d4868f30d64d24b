package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionBuilder(t *testing.T) {
	txns := NewTransactionBuilder(t, "conn-1").
		WithPrefix("b").
		Debit("2024-06-01", "TESCO", 12.5).WithMerchant("Tesco").WithCategory("Groceries").
		Credit("2024-06-02", "SALARY", -2500).
		Debit("2024-06-03", "RENT", 900).ScheduledFor("2024-07-01").
		Build()

	require.Len(t, txns, 3)
	assert.Equal(t, "b-001", txns[0].ID)
	assert.Equal(t, "conn-1", txns[0].ConnectionID)
	assert.InDelta(t, -12.5, txns[0].Amount, 0.0001)
	assert.Equal(t, "Tesco", txns[0].MerchantName)
	assert.Equal(t, "Groceries", txns[0].TransactionCategory)
	assert.InDelta(t, 2500.0, txns[1].Amount, 0.0001)
	require.NotNil(t, txns[2].ScheduledDate)
	assert.Equal(t, "2024-07-01", *txns[2].ScheduledDate)
}

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t)
	require.NotEmpty(t, db.Connection.ID)
	assert.Equal(t, DefaultUserID, db.UserID)

	db.MustSaveTransactions(NewTransactionBuilder(t, db.Connection.ID).
		Debit("2024-06-01T10:00:00Z", "TESCO", 3).
		Build()...)
	assert.Equal(t, "TESCO", db.MustGetTransaction("txn-001").Description)
}
