// Package model defines the core data structures shared by categorization,
// pattern detection and challenge evaluation.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Transaction represents a single bank transaction as delivered by a provider.
// Timestamps are kept in their ISO-8601 wire form and parsed on demand so that
// malformed provider data surfaces as an error instead of a zero time.
type Transaction struct {
	ScheduledDate       *string // Present only for future-dated transactions
	ID                  string
	ConnectionID        string
	Timestamp           string // ISO-8601
	Description         string // Raw bank text
	MerchantName        string // Empty when the provider supplies none
	TransactionCategory string // Assigned by categorization
	TransactionType     string // Free-text hint, e.g. debit, credit, scheduled
	Currency            string
	Amount              float64 // Negative = outflow, positive = inflow
}

// Time parses the transaction timestamp.
func (t Transaction) Time() (time.Time, error) {
	return ParseTimestamp(t.Timestamp)
}

// ScheduledTime parses the scheduled date. The boolean is false when the
// transaction has no scheduled date.
func (t Transaction) ScheduledTime() (time.Time, bool, error) {
	if t.ScheduledDate == nil || strings.TrimSpace(*t.ScheduledDate) == "" {
		return time.Time{}, false, nil
	}
	ts, err := ParseTimestamp(*t.ScheduledDate)
	if err != nil {
		return time.Time{}, true, err
	}
	return ts, true, nil
}

// IsDebit reports whether the transaction is an outflow.
func (t Transaction) IsDebit() bool {
	return t.Amount < 0
}

// PatternKey returns the canonical key used for user category overrides:
// the merchant name when present, otherwise the description.
func (t Transaction) PatternKey() string {
	if strings.TrimSpace(t.MerchantName) != "" {
		return t.MerchantName
	}
	return t.Description
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 variants providers emit. Values without
// an offset are interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// FormatTimestamp renders t in the canonical wire form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
