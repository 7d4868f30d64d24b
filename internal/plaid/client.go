// Package plaid provides a client for interacting with the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/provider"
	"github.com/Veraticus/spendlens/internal/service"
)

// ProviderName identifies Plaid connections.
const ProviderName = "plaid"

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
	// AccountID restricts the client to one account of the item. When empty
	// all accounts are read and balances come from the first one.
	AccountID string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig)
	}

	validEnvs := map[string]bool{
		"sandbox":    true,
		"production": true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("%w: invalid Plaid environment: must be sandbox or production", common.ErrInvalidConfig)
	}

	return nil
}

// Client implements provider.TransactionFetcher over one Plaid item.
type Client struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   *service.RetryOptions
	accessToken string
	accountID   string
}

// Ensure Client implements provider.TransactionFetcher.
var _ provider.TransactionFetcher = (*Client)(nil)

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Configure Plaid client based on environment
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	retryOpts := service.DefaultRetryOptions()
	return &Client{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		logger:      common.ComponentLogger("plaid"),
		retryOpts:   &retryOpts,
	}, nil
}

// Name implements provider.TransactionFetcher.
func (c *Client) Name() string {
	return ProviderName
}

// GetTransactions fetches transactions from Plaid within [startDate, endDate).
// Plaid reports outflows as positive amounts; they are returned negative.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	if !startDate.Before(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}
	// Plaid's end date is an inclusive calendar day.
	lastDay := endDate.Add(-time.Nanosecond)

	c.logger.Info("Fetching transactions from Plaid",
		"start_date", startDate.Format("2006-01-02"),
		"end_date", lastDay.Format("2006-01-02"))

	var allTransactions []plaid.Transaction
	offset := int32(0)
	const pageSize = int32(500) // Plaid's max page size

	// Fetch all transactions with pagination
	for {
		var plaidTransactions []plaid.Transaction

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				c.accessToken,
				startDate.Format("2006-01-02"),
				lastDay.Format("2006-01-02"),
			)
			// Set options for pagination
			options := plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			}
			if c.accountID != "" {
				options.AccountIds = &[]string{c.accountID}
			}
			request.SetOptions(options)

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.apiError("failed to fetch transactions", err)
			}

			plaidTransactions = resp.GetTransactions()
			c.logger.Debug("Fetched transaction batch",
				"count", len(plaidTransactions),
				"offset", offset,
				"total", resp.GetTotalTransactions())

			return nil
		}, *c.retryOpts)

		if retryErr != nil {
			return nil, retryErr
		}

		allTransactions = append(allTransactions, plaidTransactions...)

		// Check if we've fetched all transactions
		if len(plaidTransactions) < int(pageSize) {
			break
		}

		offset += pageSize
	}

	c.logger.Info("Fetched all transactions", "count", len(allTransactions))

	// Convert Plaid transactions to our model
	transactions := make([]model.Transaction, 0, len(allTransactions))
	for _, pt := range allTransactions {
		transactions = append(transactions, mapPlaidTransaction(pt))
	}

	return transactions, nil
}

// GetBalances returns the live balance of the configured account, or of the
// item's first account when none is configured.
func (c *Client) GetBalances(ctx context.Context) ([]model.Balance, error) {
	var accounts []plaid.AccountBase
	retryErr := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsBalanceGetRequest(c.accessToken)
		resp, _, err := c.client.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*request).Execute()
		if err != nil {
			return c.apiError("failed to fetch balances", err)
		}
		accounts = resp.GetAccounts()
		return nil
	}, *c.retryOpts)
	if retryErr != nil {
		return nil, retryErr
	}

	account, ok := selectAccount(accounts, c.accountID)
	if !ok {
		return []model.Balance{}, nil
	}
	return []model.Balance{mapBalance(account.GetBalances(), time.Now().UTC())}, nil
}

// apiError classifies a Plaid failure, marking rate limits retryable.
func (c *Client) apiError(op string, err error) error {
	if plaidError := extractPlaidError(err); plaidError != nil {
		if plaidError.ErrorCode == "RATE_LIMIT_EXCEEDED" {
			c.logger.Warn("Rate limit hit, will retry", "error", plaidError.ErrorMessage)
			return &common.RetryableError{Err: fmt.Errorf("%w: %s", common.ErrProviderRateLimit, plaidError.ErrorMessage), Retryable: true}
		}
		return fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func selectAccount(accounts []plaid.AccountBase, accountID string) (plaid.AccountBase, bool) {
	for _, a := range accounts {
		if accountID == "" || a.GetAccountId() == accountID {
			return a, true
		}
	}
	return plaid.AccountBase{}, false
}

func mapBalance(b plaid.AccountBalance, asOf time.Time) model.Balance {
	return model.Balance{
		AsOf:      asOf,
		Currency:  b.GetIsoCurrencyCode(),
		Current:   b.GetCurrent(),
		Available: b.GetAvailable(),
	}
}

// mapPlaidTransaction converts a Plaid transaction to the signed model.
func mapPlaidTransaction(pt plaid.Transaction) model.Transaction {
	// Extract transaction type from payment channel
	transactionType := ""
	switch pt.GetPaymentChannel() {
	case "online":
		transactionType = "ONLINE"
	case "in store":
		transactionType = "POS"
	case "":
	default:
		transactionType = "OTHER"
	}
	if pt.GetPending() {
		transactionType = "PENDING"
	}

	// In Plaid positive amounts are money out.
	amount := -pt.GetAmount()

	return model.Transaction{
		ID:              pt.GetTransactionId(),
		Timestamp:       pt.GetDate(),
		Description:     strings.TrimSpace(pt.GetName()),
		MerchantName:    cleanMerchantName(pt.GetMerchantName()),
		Amount:          amount,
		Currency:        pt.GetIsoCurrencyCode(),
		TransactionType: transactionType,
	}
}

// cleanMerchantName standardizes merchant names by removing common suffixes and normalizing format.
func cleanMerchantName(name string) string {
	// Convert to title case manually to avoid deprecated strings.Title
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		if word != "" {
			// Handle special cases
			runes := []rune(word)
			for j := 0; j < len(runes); j++ {
				if j == 0 || (j > 0 && !isLetter(runes[j-1])) {
					runes[j] = toUpper(runes[j])
				}
			}
			words[i] = string(runes)
		}
	}
	name = strings.Join(words, " ")

	// Handle common patterns like "MERCHANT 123456789" first
	// Use strings.Fields to split by any whitespace and rejoin with single spaces
	parts := strings.Fields(name)
	if len(parts) > 1 {
		lastPart := parts[len(parts)-1]
		// If the last part is all digits and longer than 5 chars, it's probably a transaction ID
		if len(lastPart) > 5 && isAllDigits(lastPart) {
			parts = parts[:len(parts)-1]
		}
	}

	// Reconstruct name without transaction ID
	name = strings.Join(parts, " ")

	// Remove common payment processor suffixes
	suffixes := []string{
		" Llc",
		" Inc",
		" Corp",
		" Corporation",
		" Company",
		" Co",
		" Ltd",
		" Limited",
	}

	// Keep removing suffixes until none are found (handles multiple suffixes)
	changed := true
	for changed {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	// Final trim
	return strings.TrimSpace(name)
}

// isAllDigits checks if a string contains only digits.
func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isLetter checks if a rune is a letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// toUpper converts a rune to uppercase.
func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}
