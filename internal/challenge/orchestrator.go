package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

// Store is the persistence surface the orchestrator drives.
type Store interface {
	service.ChallengeStore
	service.RewardStore
	GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error)
}

// Orchestrator applies the evaluator across a user's active challenges and
// persists the resulting transitions and rewards.
type Orchestrator struct {
	store    Store
	budgets  BudgetPolicy
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLocation sets the zone used for clock-time windows, weekdays and "today".
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithBudgetPolicy replaces the stored per-user budgets.
func WithBudgetPolicy(p BudgetPolicy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.budgets = p
		}
	}
}

// NewOrchestrator creates an orchestrator backed by store.
func NewOrchestrator(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		budgets:  NewStorageBudgets(store, nil),
		clock:    clock.NewReal(),
		location: time.UTC,
		logger:   common.ComponentLogger("challenge"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.clock = clock.OrReal(o.clock)
	return o
}

// UpdateResult summarizes one progress pass.
type UpdateResult struct {
	BadgesAwarded []string
	Evaluated     int
	Completed     int
	Failed        int
	Updated       int
	Skipped       int
	XPAwarded     int
}

// UpdateChallengeProgress evaluates every active challenge of userID against
// transactions. Orphaned challenge references are skipped. A failure on one
// challenge leaves it untouched and does not stop the others; all such
// failures are returned joined.
func (o *Orchestrator) UpdateChallengeProgress(ctx context.Context, userID string, transactions []model.Transaction) (*UpdateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.ErrUnauthorized
	}

	active, err := o.store.GetActiveUserChallenges(ctx, userID)
	if err != nil {
		return nil, common.StorageError("failed to load active challenges", err)
	}
	if len(active) == 0 {
		return &UpdateResult{}, nil
	}

	catalog, err := o.store.GetChallenges(ctx)
	if err != nil {
		return nil, common.StorageError("failed to load challenge catalog", err)
	}
	definitions := make(map[string]model.Challenge, len(catalog))
	for _, c := range catalog {
		definitions[c.ID] = c
	}

	run := &progressRun{orchestrator: o, userID: userID, now: o.clock.Now()}
	result := &UpdateResult{}
	var errs []error

	for _, uc := range active {
		def, ok := definitions[uc.ChallengeID]
		if !ok {
			o.logger.Debug("Skipping orphaned user challenge",
				"user_challenge_id", uc.ID,
				"challenge_id", uc.ChallengeID)
			result.Skipped++
			continue
		}

		if err := run.apply(ctx, uc, def, transactions, result); err != nil {
			o.logger.Error("Challenge progress update failed",
				"user_id", userID,
				"user_challenge_id", uc.ID,
				"challenge_id", def.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("challenge %s: %w", uc.ID, err))
		}
	}

	o.logger.Info("Updated challenge progress",
		"user_id", userID,
		"evaluated", result.Evaluated,
		"completed", result.Completed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"errors", len(errs))

	return result, errors.Join(errs...)
}

// progressRun caches per-pass lookups shared by several challenges.
type progressRun struct {
	orchestrator *Orchestrator
	budgets      map[string]float64
	now          time.Time
	userID       string
}

func (r *progressRun) apply(ctx context.Context, uc model.UserChallenge, def model.Challenge, transactions []model.Transaction, result *UpdateResult) error {
	o := r.orchestrator

	in := Input{
		UserChallenge: uc,
		Challenge:     def,
		Transactions:  transactions,
		Now:           r.now,
		Location:      o.location,
	}

	switch c := def.Criteria.(type) {
	case model.SpendingReductionCriteria:
		baseline, err := o.baseline(ctx, r.userID, uc.StartedAt, BaselineWeeks(c))
		if err != nil {
			return err
		}
		in.Baseline = &baseline
	case model.CategoryBudgetCriteria:
		if r.budgets == nil {
			budgets, err := o.budgets.Budgets(ctx, r.userID)
			if err != nil {
				return err
			}
			r.budgets = budgets
		}
		in.Budgets = r.budgets
	}

	outcome, err := Evaluate(in)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	result.Evaluated++

	switch {
	case outcome.Completed:
		return o.complete(ctx, uc, def, outcome, r.now, result)
	case outcome.Failed:
		if err := o.store.FinishUserChallenge(ctx, uc.ID, model.ChallengeFailed, outcome.Progress, r.now); err != nil {
			if errors.Is(err, common.ErrChallengeNotActive) {
				result.Skipped++
				return nil
			}
			return common.StorageError("failed to mark challenge failed", err)
		}
		result.Failed++
		return nil
	default:
		if err := o.store.UpdateUserChallengeProgress(ctx, uc.ID, outcome.Progress, outcome.Streak); err != nil {
			if errors.Is(err, common.ErrChallengeNotActive) {
				result.Skipped++
				return nil
			}
			return common.StorageError("failed to save challenge progress", err)
		}
		result.Updated++
		return nil
	}
}

// complete finishes the challenge and issues its rewards. Rewards are only
// issued by the writer that performed the transition.
func (o *Orchestrator) complete(ctx context.Context, uc model.UserChallenge, def model.Challenge, outcome Outcome, now time.Time, result *UpdateResult) error {
	res, err := o.store.CompleteUserChallenge(ctx, service.Completion{
		UserChallengeID: uc.ID,
		UserID:          uc.UserID,
		Progress:        outcome.Progress,
		CompletedAt:     now,
		XP:              def.RewardXP,
		Badge:           def.RewardBadge,
	})
	if err != nil {
		if errors.Is(err, common.ErrChallengeNotActive) {
			o.logger.Debug("Challenge already finished by another writer", "user_challenge_id", uc.ID)
			result.Skipped++
			return nil
		}
		// The transition and rewards roll back together; the attempt stays
		// active and is evaluated again on the next pass.
		return common.StorageError("failed to complete challenge", err)
	}
	result.Completed++

	if def.RewardXP > 0 {
		result.XPAwarded += def.RewardXP
		o.logger.Info("Awarded challenge xp",
			"user_id", uc.UserID,
			"challenge_id", def.ID,
			"xp", def.RewardXP,
			"total_xp", res.TotalXP)
	}
	if res.BadgeAwarded {
		result.BadgesAwarded = append(result.BadgesAwarded, def.RewardBadge)
	}

	return nil
}

func (o *Orchestrator) baseline(ctx context.Context, userID string, startedAt time.Time, weeks int) (float64, error) {
	start, end := BaselineRange(startedAt, weeks)
	history, err := o.store.GetTransactions(ctx, service.TransactionFilter{
		UserID: userID,
		Start:  &start,
		End:    &end,
	})
	if err != nil {
		return 0, common.StorageError("failed to load baseline history", err)
	}
	return WeekendBaseline(history, startedAt, weeks, o.location)
}

// StartChallenge creates an active attempt at challengeID for userID after
// the store confirms eligibility.
func (o *Orchestrator) StartChallenge(ctx context.Context, userID, challengeID string) (*model.UserChallenge, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.ErrUnauthorized
	}

	eligible, err := o.store.CanStartChallenge(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("challenge %s: %w", challengeID, common.ErrNotFound)
		}
		return nil, common.StorageError("failed to check challenge eligibility", err)
	}
	if !eligible {
		return nil, common.NewUserError("user is not eligible for this challenge", common.ErrInvalidOperation)
	}

	uc := &model.UserChallenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      model.ChallengeActive,
		Progress:    model.Progress{},
		Streak:      0,
		StartedAt:   o.clock.Now(),
	}
	if err := o.store.CreateUserChallenge(ctx, uc); err != nil {
		return nil, common.StorageError("failed to create user challenge", err)
	}

	o.logger.Info("Started challenge", "user_id", userID, "challenge_id", challengeID, "user_challenge_id", uc.ID)
	return uc, nil
}
