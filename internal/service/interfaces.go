// Package service defines the contracts between the core components and
// their collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spendlens/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Start and End bound the transaction timestamp (inclusive start, exclusive end).
type TransactionFilter struct {
	Start        *time.Time
	End          *time.Time
	UserID       string
	ConnectionID string
	Limit        int
	Offset       int
}

// RuleStore reads and writes merchant category rules.
type RuleStore interface {
	GetUserRules(ctx context.Context, userID string) ([]model.MerchantCategoryRule, error)
	GetSystemRules(ctx context.Context) ([]model.MerchantCategoryRule, error)
	SeedSystemRules(ctx context.Context, rules []model.MerchantCategoryRule) (int, error)
	// ApplyCategoryOverride upserts the user rule for patternKey and moves every
	// transaction of the user whose merchant name or description equals the key
	// to category, in one database transaction. It returns the number of
	// transactions updated.
	ApplyCategoryOverride(ctx context.Context, userID, patternKey, category string) (int64, error)
}

// TransactionStore reads and writes transactions and balances.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionCategories(ctx context.Context, categories map[string]string) error
	SaveConnection(ctx context.Context, conn *model.Connection) error
	GetConnections(ctx context.Context, userID string) ([]model.Connection, error)
	MarkConnectionSynced(ctx context.Context, connectionID string, at time.Time) error
	SaveBalances(ctx context.Context, balances []model.Balance) error
}

// ChallengeStore reads and writes challenge definitions and user progress.
type ChallengeStore interface {
	GetChallenges(ctx context.Context) ([]model.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	SaveChallenge(ctx context.Context, challenge *model.Challenge) error
	GetActiveUserChallenges(ctx context.Context, userID string) ([]model.UserChallenge, error)
	GetUserChallenges(ctx context.Context, userID string) ([]model.UserChallenge, error)
	CanStartChallenge(ctx context.Context, userID, challengeID string) (bool, error)
	CreateUserChallenge(ctx context.Context, uc *model.UserChallenge) error
	UpdateUserChallengeProgress(ctx context.Context, id string, progress model.Progress, streak int) error
	// FinishUserChallenge moves an active row to a terminal status. It returns
	// common.ErrChallengeNotActive when the row was already terminal.
	FinishUserChallenge(ctx context.Context, id string, status model.ChallengeStatus, progress model.Progress, completedAt time.Time) error
	// CompleteUserChallenge marks an active row completed and issues its
	// rewards in one transaction. Nothing is written on failure, and
	// common.ErrChallengeNotActive is returned when the row was already terminal.
	CompleteUserChallenge(ctx context.Context, completion Completion) (CompletionResult, error)
}

// Completion is a user challenge transition to completed with its rewards.
type Completion struct {
	CompletedAt     time.Time
	Progress        model.Progress
	UserChallengeID string
	UserID          string
	Badge           string // Empty when no badge is awarded
	XP              int
}

// CompletionResult reports the rewards one completion issued.
type CompletionResult struct {
	TotalXP      int
	BadgeAwarded bool
}

// RewardStore issues experience points and badges and reads per-user budgets.
type RewardStore interface {
	AwardXP(ctx context.Context, userID string, xp int) (int, error)
	// AwardBadge is idempotent; the boolean reports whether the badge was new.
	AwardBadge(ctx context.Context, userID, badge string) (bool, error)
	GetUserXP(ctx context.Context, userID string) (int, error)
	GetCategoryBudgets(ctx context.Context, userID string) (map[string]float64, error)
	SetCategoryBudget(ctx context.Context, userID, category string, limit float64) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	RuleStore
	TransactionStore
	ChallengeStore
	RewardStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for outbound calls.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions is the policy used for provider API calls.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
