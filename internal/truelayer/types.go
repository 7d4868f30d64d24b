package truelayer

// AccountsResponse is the accounts endpoint response.
type AccountsResponse struct {
	Status  string    `json:"status"`
	Results []Account `json:"results"`
}

// Account is a bank account visible through the user's consent.
type Account struct {
	AccountID       string          `json:"account_id"`
	AccountType     string          `json:"account_type"` // TRANSACTION, SAVINGS, ...
	DisplayName     string          `json:"display_name"`
	Currency        string          `json:"currency"`
	UpdateTimestamp string          `json:"update_timestamp"`
	Provider        AccountProvider `json:"provider"`
}

// AccountProvider identifies the bank behind an account.
type AccountProvider struct {
	ProviderID  string `json:"provider_id"`
	DisplayName string `json:"display_name"`
}

// BalanceResponse is the balance endpoint response.
type BalanceResponse struct {
	Status  string    `json:"status"`
	Results []Balance `json:"results"`
}

// Balance is an account balance snapshot.
type Balance struct {
	Currency        string  `json:"currency"`
	UpdateTimestamp string  `json:"update_timestamp"`
	Available       float64 `json:"available"`
	Current         float64 `json:"current"`
	Overdraft       float64 `json:"overdraft,omitempty"`
}

// TransactionsResponse is the transactions endpoint response.
type TransactionsResponse struct {
	Status  string        `json:"status"`
	Results []Transaction `json:"results"`
}

// Transaction is a booked or pending account transaction. Debits carry a
// negative amount.
type Transaction struct {
	Meta                      *TransactionMeta `json:"meta,omitempty"`
	TransactionID             string           `json:"transaction_id"`
	Timestamp                 string           `json:"timestamp"`
	Description               string           `json:"description"`
	Currency                  string           `json:"currency"`
	TransactionType           string           `json:"transaction_type"` // DEBIT, CREDIT
	TransactionCategory       string           `json:"transaction_category"`
	MerchantName              string           `json:"merchant_name,omitempty"`
	TransactionClassification []string         `json:"transaction_classification,omitempty"`
	Amount                    float64          `json:"amount"`
}

// TransactionMeta contains provider metadata.
type TransactionMeta struct {
	ProviderTransactionCategory string `json:"provider_transaction_category,omitempty"`
	ProviderReference           string `json:"provider_reference,omitempty"`
}

// errorResponse is the TrueLayer error body.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Read-only OAuth scopes requested from the user.
const (
	ScopeInfo          = "info"
	ScopeAccounts      = "accounts"
	ScopeBalance       = "balance"
	ScopeTransactions  = "transactions"
	ScopeOfflineAccess = "offline_access"
)

// DefaultScopes are requested by AuthCodeURL.
var DefaultScopes = []string{ScopeInfo, ScopeAccounts, ScopeBalance, ScopeTransactions, ScopeOfflineAccess}
