package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spendlens/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidStatus      = errors.New("invalid challenge status")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidConnection  = errors.New("invalid connection")
	ErrInvalidChallenge   = errors.New("invalid challenge")
	ErrInvalidRule        = errors.New("invalid merchant rule")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.ConnectionID == "" {
		return fmt.Errorf("%w: missing connection ID", ErrInvalidTransaction)
	}
	if _, err := txn.Time(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if _, _, err := txn.ScheduledTime(); err != nil {
		return fmt.Errorf("%w: scheduled date: %w", ErrInvalidTransaction, err)
	}
	return nil
}

// validateConnection validates a provider connection.
func validateConnection(conn *model.Connection) error {
	if conn == nil {
		return fmt.Errorf("%w: connection", ErrNilParameter)
	}
	if strings.TrimSpace(conn.UserID) == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidConnection)
	}
	if strings.TrimSpace(conn.Provider) == "" {
		return fmt.Errorf("%w: missing provider", ErrInvalidConnection)
	}
	if strings.TrimSpace(conn.AccountID) == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidConnection)
	}
	return nil
}

// validateChallenge validates a challenge definition.
func validateChallenge(c *model.Challenge) error {
	if c == nil {
		return fmt.Errorf("%w: challenge", ErrNilParameter)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidChallenge)
	}
	if c.Criteria == nil {
		return fmt.Errorf("%w: missing criteria", ErrInvalidChallenge)
	}
	if c.RewardXP < 0 {
		return fmt.Errorf("%w: reward xp cannot be negative", ErrInvalidChallenge)
	}
	return nil
}

// validateRule validates a merchant category rule.
func validateRule(r *model.MerchantCategoryRule) error {
	if r == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if len(r.Alternatives()) == 0 {
		return fmt.Errorf("%w: merchant pattern has no alternatives", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	return nil
}

// validateTerminalStatus ensures status ends a challenge.
func validateTerminalStatus(status model.ChallengeStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidStatus, status)
	}
	return nil
}
