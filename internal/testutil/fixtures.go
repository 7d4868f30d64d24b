package testutil

import (
	"fmt"
	"math"
	"testing"

	"github.com/Veraticus/spendlens/internal/model"
)

// TransactionBuilder provides a fluent interface for constructing test
// transactions. Amounts are given as magnitudes; Debit stores them negative.
type TransactionBuilder struct {
	t            *testing.T
	connectionID string
	prefix       string
	txns         []model.Transaction
}

// NewTransactionBuilder starts a batch for connectionID.
func NewTransactionBuilder(t *testing.T, connectionID string) *TransactionBuilder {
	t.Helper()
	return &TransactionBuilder{t: t, connectionID: connectionID, prefix: "txn"}
}

// WithPrefix sets the ID prefix so several batches can share a database.
func (b *TransactionBuilder) WithPrefix(prefix string) *TransactionBuilder {
	b.prefix = prefix
	return b
}

// Debit adds an outflow.
func (b *TransactionBuilder) Debit(timestamp, description string, amount float64) *TransactionBuilder {
	return b.add(timestamp, description, -math.Abs(amount), "DEBIT")
}

// Credit adds an inflow.
func (b *TransactionBuilder) Credit(timestamp, description string, amount float64) *TransactionBuilder {
	return b.add(timestamp, description, math.Abs(amount), "CREDIT")
}

// WithMerchant sets the merchant of the last added transaction.
func (b *TransactionBuilder) WithMerchant(name string) *TransactionBuilder {
	b.last().MerchantName = name
	return b
}

// WithCategory sets the category of the last added transaction.
func (b *TransactionBuilder) WithCategory(category string) *TransactionBuilder {
	b.last().TransactionCategory = category
	return b
}

// ScheduledFor marks the last added transaction as future-dated.
func (b *TransactionBuilder) ScheduledFor(date string) *TransactionBuilder {
	b.last().ScheduledDate = model.StringPtr(date)
	b.last().TransactionType = "SCHEDULED"
	return b
}

// Build returns the transactions added so far.
func (b *TransactionBuilder) Build() []model.Transaction {
	out := make([]model.Transaction, len(b.txns))
	copy(out, b.txns)
	return out
}

func (b *TransactionBuilder) add(timestamp, description string, amount float64, kind string) *TransactionBuilder {
	b.txns = append(b.txns, model.Transaction{
		ID:              fmt.Sprintf("%s-%03d", b.prefix, len(b.txns)+1),
		ConnectionID:    b.connectionID,
		Timestamp:       timestamp,
		Description:     description,
		Amount:          amount,
		Currency:        "GBP",
		TransactionType: kind,
	})
	return b
}

func (b *TransactionBuilder) last() *model.Transaction {
	b.t.Helper()
	if len(b.txns) == 0 {
		b.t.Fatal("transaction builder: no transaction to modify")
	}
	return &b.txns[len(b.txns)-1]
}
