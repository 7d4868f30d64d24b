package truelayer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_GetTransactions(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/v1/accounts/acc-1/transactions":
			assert.Equal(t, "2024-06-01T00:00:00Z", r.URL.Query().Get("from"))
			assert.Equal(t, "2024-06-08T00:00:00Z", r.URL.Query().Get("to"))
			writeJSON(w, TransactionsResponse{Results: []Transaction{
				{TransactionID: "t1", Timestamp: "2024-06-02T10:00:00+00:00", Description: " TESCO STORES ", Amount: 12.5, Currency: "GBP", TransactionType: "DEBIT"},
				{TransactionID: "t2", Timestamp: "2024-06-03T09:00:00+00:00", Description: "SALARY", Amount: 2500, Currency: "GBP", TransactionType: "CREDIT", MerchantName: "Acme"},
				{TransactionID: "t3", Timestamp: "2024-06-08T00:00:00+00:00", Description: "BOUNDARY", Amount: -1, TransactionType: "DEBIT"},
			}})
		case "/data/v1/accounts/acc-1/transactions/pending":
			writeJSON(w, TransactionsResponse{Results: []Transaction{
				{TransactionID: "p1", Timestamp: "2024-06-10T00:00:00+00:00", Description: "COUNCIL TAX", Amount: -120, TransactionType: "DEBIT"},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	f := NewFetcher(newTestClient(t, srv, "rt-1"), "acc-1")
	assert.Equal(t, ProviderName, f.Name())

	txns, err := f.GetTransactions(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "t1", txns[0].ID)
	assert.Equal(t, "TESCO STORES", txns[0].Description)
	assert.InDelta(t, -12.5, txns[0].Amount, 0.0001)
	assert.Nil(t, txns[0].ScheduledDate)

	assert.InDelta(t, 2500.0, txns[1].Amount, 0.0001)
	assert.Equal(t, "Acme", txns[1].MerchantName)

	assert.Equal(t, "p1", txns[2].ID)
	require.NotNil(t, txns[2].ScheduledDate)
	assert.Equal(t, "2024-06-10T00:00:00+00:00", *txns[2].ScheduledDate)
	assert.Equal(t, "SCHEDULED", txns[2].TransactionType)

	_, err = f.GetTransactions(context.Background(), to, from)
	assert.Error(t, err)
}

func TestFetcher_GetBalances(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v1/accounts/acc-1/balance", r.URL.Path)
		writeJSON(w, BalanceResponse{Results: []Balance{
			{Currency: "GBP", Current: 950.25, Available: 900, UpdateTimestamp: "2024-06-08T07:30:00Z"},
		}})
	})
	f := NewFetcher(newTestClient(t, srv, "rt-1"), "acc-1")

	balances, err := f.GetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.InDelta(t, 950.25, balances[0].Current, 0.0001)
	assert.True(t, balances[0].AsOf.Equal(time.Date(2024, 6, 8, 7, 30, 0, 0, time.UTC)))
}

func TestFetcher_NoAccount(t *testing.T) {
	f := NewFetcher(nil, "")
	_, err := f.GetTransactions(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrNoAccount)
	_, err = f.GetBalances(context.Background())
	assert.ErrorIs(t, err, ErrNoAccount)
}
