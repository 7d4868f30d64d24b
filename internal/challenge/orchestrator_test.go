package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

type budgetReaderFunc func(userID string) (map[string]float64, error)

func (f budgetReaderFunc) GetCategoryBudgets(_ context.Context, userID string) (map[string]float64, error) {
	return f(userID)
}

type finishCall struct {
	status   model.ChallengeStatus
	progress model.Progress
	id       string
}

type progressCall struct {
	progress model.Progress
	id       string
	streak   int
}

type fakeStore struct {
	finishErr      map[string]error
	progressErr    map[string]error
	badges         map[string]bool
	activeErr      error
	rewardErr      error
	eligibleErr    error
	history        []model.Transaction
	challenges     []model.Challenge
	active         []model.UserChallenge
	finished       []finishCall
	progressed     []progressCall
	created        []model.UserChallenge
	historyFilters []service.TransactionFilter
	xp             int
	eligible       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		finishErr:   map[string]error{},
		progressErr: map[string]error{},
		badges:      map[string]bool{},
		eligible:    true,
	}
}

func (f *fakeStore) GetChallenges(context.Context) ([]model.Challenge, error) {
	return f.challenges, nil
}

func (f *fakeStore) GetChallenge(_ context.Context, id string) (*model.Challenge, error) {
	for _, c := range f.challenges {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeStore) SaveChallenge(_ context.Context, c *model.Challenge) error {
	f.challenges = append(f.challenges, *c)
	return nil
}

func (f *fakeStore) GetActiveUserChallenges(context.Context, string) ([]model.UserChallenge, error) {
	return f.active, f.activeErr
}

func (f *fakeStore) GetUserChallenges(context.Context, string) ([]model.UserChallenge, error) {
	return f.active, nil
}

func (f *fakeStore) CanStartChallenge(context.Context, string, string) (bool, error) {
	return f.eligible, f.eligibleErr
}

func (f *fakeStore) CreateUserChallenge(_ context.Context, uc *model.UserChallenge) error {
	f.created = append(f.created, *uc)
	return nil
}

func (f *fakeStore) UpdateUserChallengeProgress(_ context.Context, id string, progress model.Progress, streak int) error {
	if err := f.progressErr[id]; err != nil {
		return err
	}
	f.progressed = append(f.progressed, progressCall{id: id, progress: progress, streak: streak})
	return nil
}

func (f *fakeStore) FinishUserChallenge(_ context.Context, id string, status model.ChallengeStatus, progress model.Progress, _ time.Time) error {
	if err := f.finishErr[id]; err != nil {
		return err
	}
	f.finished = append(f.finished, finishCall{id: id, status: status, progress: progress})
	return nil
}

func (f *fakeStore) CompleteUserChallenge(_ context.Context, c service.Completion) (service.CompletionResult, error) {
	if err := f.finishErr[c.UserChallengeID]; err != nil {
		return service.CompletionResult{}, err
	}
	// Mirrors the storage transaction: nothing is recorded when the reward fails.
	if f.rewardErr != nil {
		return service.CompletionResult{}, f.rewardErr
	}
	f.finished = append(f.finished, finishCall{id: c.UserChallengeID, status: model.ChallengeCompleted, progress: c.Progress})
	var res service.CompletionResult
	if c.XP > 0 {
		f.xp += c.XP
		res.TotalXP = f.xp
	}
	if c.Badge != "" && !f.badges[c.Badge] {
		f.badges[c.Badge] = true
		res.BadgeAwarded = true
	}
	return res, nil
}

func (f *fakeStore) AwardXP(_ context.Context, _ string, xp int) (int, error) {
	f.xp += xp
	return f.xp, nil
}

func (f *fakeStore) AwardBadge(_ context.Context, _ string, badge string) (bool, error) {
	if f.badges[badge] {
		return false, nil
	}
	f.badges[badge] = true
	return true, nil
}

func (f *fakeStore) GetUserXP(context.Context, string) (int, error) {
	return f.xp, nil
}

func (f *fakeStore) GetCategoryBudgets(context.Context, string) (map[string]float64, error) {
	return map[string]float64{"Dining": 10}, nil
}

func (f *fakeStore) SetCategoryBudget(context.Context, string, string, float64) error {
	return nil
}

func (f *fakeStore) GetTransactions(_ context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	f.historyFilters = append(f.historyFilters, filter)
	return f.history, nil
}

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(store *fakeStore) *Orchestrator {
	return NewOrchestrator(store, WithClock(clock.NewFixed(now)))
}

func userChallenge(id, challengeID string) model.UserChallenge {
	return model.UserChallenge{
		ID:          id,
		UserID:      "user-1",
		ChallengeID: challengeID,
		Status:      model.ChallengeActive,
		StartedAt:   started,
		Progress:    model.Progress{},
	}
}

func TestUpdateChallengeProgress_Transitions(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "save", Criteria: model.SavingsCriteria{Target: 100}, RewardXP: 50, RewardBadge: "saver", Active: true},
		{ID: "nospend", Criteria: model.NoSpendCriteria{MaxSpend: 10}, RewardXP: 20, Active: true},
		{ID: "save-big", Criteria: model.SavingsCriteria{Target: 10000}, RewardXP: 500, Active: true},
	}
	store.active = []model.UserChallenge{
		userChallenge("uc-save", "save"),
		userChallenge("uc-nospend", "nospend"),
		userChallenge("uc-big", "save-big"),
	}
	txns := []model.Transaction{
		{ID: "t1", Timestamp: "2024-06-05T10:00:00Z", Amount: 150},
		{ID: "t2", Timestamp: "2024-06-05T11:00:00Z", Amount: -25},
	}

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", txns)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 50, result.XPAwarded)
	assert.Equal(t, []string{"saver"}, result.BadgesAwarded)

	require.Len(t, store.finished, 2)
	assert.Equal(t, finishCall{id: "uc-save", status: model.ChallengeCompleted, progress: model.Progress{KeyTotalSaved: 150.0}}, store.finished[0])
	assert.Equal(t, "uc-nospend", store.finished[1].id)
	assert.Equal(t, model.ChallengeFailed, store.finished[1].status)

	require.Len(t, store.progressed, 1)
	assert.Equal(t, "uc-big", store.progressed[0].id)
	assert.Equal(t, 50, store.xp)
	assert.True(t, store.badges["saver"])
}

func TestUpdateChallengeProgress_OrphanSkipped(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "save", Criteria: model.SavingsCriteria{Target: 1}, RewardXP: 5},
	}
	store.active = []model.UserChallenge{
		userChallenge("uc-orphan", "deleted-challenge"),
		userChallenge("uc-save", "save"),
	}

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", []model.Transaction{
		{ID: "t1", Timestamp: "2024-06-05T10:00:00Z", Amount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Completed)
	require.Len(t, store.finished, 1)
	assert.Equal(t, "uc-save", store.finished[0].id)
}

func TestUpdateChallengeProgress_IsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "a", Criteria: model.SavingsCriteria{Target: 1000}},
		{ID: "b", Criteria: model.ReducedSpendingCriteria{Category: "Dining", TimeWindow: "bogus"}},
		{ID: "c", Criteria: model.SavingsCriteria{Target: 1000}},
	}
	store.active = []model.UserChallenge{
		userChallenge("uc-a", "a"),
		userChallenge("uc-b", "b"),
		userChallenge("uc-c", "c"),
	}
	store.progressErr["uc-a"] = errors.New("write timeout")

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "uc-a")
	assert.Contains(t, err.Error(), "uc-b")

	require.NotNil(t, result)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, store.progressed, 1)
	assert.Equal(t, "uc-c", store.progressed[0].id)
}

func TestUpdateChallengeProgress_LostRaceIssuesNoReward(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "save", Criteria: model.SavingsCriteria{Target: 1}, RewardXP: 100, RewardBadge: "saver"},
	}
	store.active = []model.UserChallenge{userChallenge("uc-save", "save")}
	store.finishErr["uc-save"] = common.ErrChallengeNotActive

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", []model.Transaction{
		{ID: "t1", Timestamp: "2024-06-05T10:00:00Z", Amount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, store.xp)
	assert.Empty(t, store.badges)
}

func TestUpdateChallengeProgress_RewardFailureKeepsChallengeActive(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "save", Criteria: model.SavingsCriteria{Target: 100}, RewardXP: 50, RewardBadge: "saver"},
	}
	store.active = []model.UserChallenge{userChallenge("uc-save", "save")}
	store.rewardErr = errors.New("xp write failed")
	txns := []model.Transaction{{ID: "t1", Timestamp: "2024-06-05T10:00:00Z", Amount: 150}}

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", txns)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorage)
	assert.Equal(t, 0, result.Completed)
	assert.Empty(t, store.finished)
	assert.Zero(t, store.xp)
	assert.Empty(t, store.badges)

	// The attempt is still active, so the next pass issues the reward.
	store.rewardErr = nil
	result, err = newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", txns)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 50, result.XPAwarded)
	assert.Equal(t, []string{"saver"}, result.BadgesAwarded)
	assert.Equal(t, 50, store.xp)
	require.Len(t, store.finished, 1)
}

func TestUpdateChallengeProgress_SpendingReductionBaseline(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "weekend", Criteria: model.SpendingReductionCriteria{ReductionTarget: 0.25, MinTransactions: 1, BaselineWeeks: 2}},
	}
	store.active = []model.UserChallenge{userChallenge("uc-weekend", "weekend")}
	store.history = []model.Transaction{
		{ID: "h1", Timestamp: "2024-05-25T12:00:00Z", Amount: -100},
		{ID: "h2", Timestamp: "2024-05-19T12:00:00Z", Amount: -100},
	}

	result, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", []model.Transaction{
		{ID: "t1", Timestamp: "2024-06-08T12:00:00Z", Amount: -50},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	require.Len(t, store.historyFilters, 1)
	filter := store.historyFilters[0]
	assert.Equal(t, "user-1", filter.UserID)
	assert.True(t, filter.Start.Equal(started.AddDate(0, 0, -14)))
	assert.True(t, filter.End.Equal(started))

	historical, _ := store.finished[0].progress.Float(KeyHistoricalAverage)
	assert.InDelta(t, 100.0, historical, 0.0001)
}

func TestUpdateChallengeProgress_CategoryBudgetFromStore(t *testing.T) {
	store := newFakeStore()
	store.challenges = []model.Challenge{
		{ID: "budget", Criteria: model.CategoryBudgetCriteria{}},
	}
	store.active = []model.UserChallenge{userChallenge("uc-budget", "budget")}

	_, err := newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", []model.Transaction{
		{ID: "t1", Timestamp: "2024-06-05T12:00:00Z", Amount: -11, TransactionCategory: "Dining"},
	})
	require.NoError(t, err)
	require.Len(t, store.finished, 1)
	assert.Equal(t, model.ChallengeFailed, store.finished[0].status)
}

func TestUpdateChallengeProgress_Errors(t *testing.T) {
	_, err := newTestOrchestrator(newFakeStore()).UpdateChallengeProgress(context.Background(), "", nil)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	store := newFakeStore()
	store.activeErr = errors.New("db down")
	_, err = newTestOrchestrator(store).UpdateChallengeProgress(context.Background(), "user-1", nil)
	assert.ErrorIs(t, err, common.ErrStorage)
}

func TestStartChallenge(t *testing.T) {
	t.Run("eligible", func(t *testing.T) {
		store := newFakeStore()
		uc, err := newTestOrchestrator(store).StartChallenge(context.Background(), "user-1", "save")
		require.NoError(t, err)
		assert.NotEmpty(t, uc.ID)
		assert.Equal(t, model.ChallengeActive, uc.Status)
		assert.Empty(t, uc.Progress)
		assert.NotNil(t, uc.Progress)
		assert.Zero(t, uc.Streak)
		assert.True(t, uc.StartedAt.Equal(now))
		require.Len(t, store.created, 1)
	})

	t.Run("ineligible", func(t *testing.T) {
		store := newFakeStore()
		store.eligible = false
		_, err := newTestOrchestrator(store).StartChallenge(context.Background(), "user-1", "save")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidOperation)
		var userErr *common.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Equal(t, "user is not eligible for this challenge", userErr.UserMessage)
		assert.Empty(t, store.created)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		store := newFakeStore()
		store.eligibleErr = common.ErrNotFound
		_, err := newTestOrchestrator(store).StartChallenge(context.Background(), "user-1", "nope")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("no user", func(t *testing.T) {
		_, err := newTestOrchestrator(newFakeStore()).StartChallenge(context.Background(), " ", "save")
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})
}
