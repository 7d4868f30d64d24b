package truelayer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/provider"
)

// ProviderName identifies TrueLayer connections.
const ProviderName = "truelayer"

// Fetcher reads one account through a Client.
type Fetcher struct {
	client    *Client
	accountID string
}

// Ensure Fetcher implements provider.TransactionFetcher.
var _ provider.TransactionFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher for accountID.
func NewFetcher(client *Client, accountID string) *Fetcher {
	return &Fetcher{client: client, accountID: accountID}
}

// Name implements provider.TransactionFetcher.
func (f *Fetcher) Name() string {
	return ProviderName
}

// GetTransactions returns booked transactions in [from, to) followed by the
// pending ones, which are marked scheduled on their expected date.
func (f *Fetcher) GetTransactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	if f.accountID == "" {
		return nil, ErrNoAccount
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	booked, err := f.client.GetTransactions(ctx, f.accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	pending, err := f.client.GetPendingTransactions(ctx, f.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending transactions: %w", err)
	}

	out := make([]model.Transaction, 0, len(booked)+len(pending))
	for _, t := range booked {
		ts, err := model.ParseTimestamp(t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.TransactionID, err)
		}
		// The API treats "to" as inclusive.
		if !ts.Before(to) {
			continue
		}
		out = append(out, mapTransaction(t))
	}
	for _, t := range pending {
		txn := mapTransaction(t)
		txn.ScheduledDate = model.StringPtr(t.Timestamp)
		txn.TransactionType = "SCHEDULED"
		out = append(out, txn)
	}
	return out, nil
}

// GetBalances implements provider.TransactionFetcher.
func (f *Fetcher) GetBalances(ctx context.Context) ([]model.Balance, error) {
	if f.accountID == "" {
		return nil, ErrNoAccount
	}

	results, err := f.client.GetBalance(ctx, f.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	balances := make([]model.Balance, 0, len(results))
	for _, b := range results {
		balance := model.Balance{Currency: b.Currency, Current: b.Current, Available: b.Available}
		if ts, err := model.ParseTimestamp(b.UpdateTimestamp); err == nil {
			balance.AsOf = ts.UTC()
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// mapTransaction converts a TrueLayer transaction to the signed model.
func mapTransaction(t Transaction) model.Transaction {
	amount := t.Amount
	switch strings.ToUpper(t.TransactionType) {
	case "DEBIT":
		amount = -math.Abs(amount)
	case "CREDIT":
		amount = math.Abs(amount)
	}

	return model.Transaction{
		ID:              t.TransactionID,
		Timestamp:       t.Timestamp,
		Description:     strings.TrimSpace(t.Description),
		MerchantName:    strings.TrimSpace(t.MerchantName),
		Amount:          amount,
		Currency:        t.Currency,
		TransactionType: t.TransactionType,
	}
}
