package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

func saveTestChallenge(t *testing.T, store *SQLStorage, c model.Challenge) model.Challenge {
	t.Helper()
	require.NoError(t, store.SaveChallenge(context.Background(), &c))
	return c
}

func TestChallenges_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	saved := saveTestChallenge(t, store, model.Challenge{
		Name:        "Late night takeaway",
		Description: "Keep late night dining under £20",
		Criteria:    model.ReducedSpendingCriteria{Category: "Dining", TimeWindow: "22:00-02:00", MaxSpend: 20},
		RewardXP:    100,
		RewardBadge: "night_owl",
		Active:      true,
	})
	require.NotEmpty(t, saved.ID)

	got, err := store.GetChallenge(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Name, got.Name)
	assert.Equal(t, "night_owl", got.RewardBadge)
	assert.True(t, got.Active)
	assert.Equal(t, model.ReducedSpendingCriteria{Category: "Dining", TimeWindow: "22:00-02:00", MaxSpend: 20}, got.Criteria)

	saveTestChallenge(t, store, model.Challenge{Name: "Mystery", Criteria: model.UnknownCriteria{Kind: "lottery", Raw: []byte(`{"type":"lottery","odds":3}`)}})

	all, err := store.GetChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byName := map[string]model.Challenge{}
	for _, c := range all {
		byName[c.Name] = c
	}
	assert.Equal(t, model.CriteriaType("lottery"), byName["Mystery"].Criteria.Type())

	_, err = store.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.SaveChallenge(ctx, &model.Challenge{Name: "No criteria"})
	assert.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestCanStartChallenge(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	active := saveTestChallenge(t, store, model.Challenge{Name: "Save", Criteria: model.SavingsCriteria{Target: 100}, Active: true})
	retired := saveTestChallenge(t, store, model.Challenge{Name: "Old", Criteria: model.SavingsCriteria{Target: 100}, Active: false})

	ok, err := store.CanStartChallenge(ctx, "user-1", active.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CanStartChallenge(ctx, "user-1", retired.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.CanStartChallenge(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	uc := model.UserChallenge{UserID: "user-1", ChallengeID: active.ID, Progress: model.Progress{}}
	require.NoError(t, store.CreateUserChallenge(ctx, &uc))

	ok, err = store.CanStartChallenge(ctx, "user-1", active.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CanStartChallenge(ctx, "user-2", active.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := model.UserChallenge{UserID: "user-1", ChallengeID: active.ID}
	assert.ErrorIs(t, store.CreateUserChallenge(ctx, &dup), common.ErrDuplicateEntry)
}

func TestUserChallenge_Lifecycle(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	c := saveTestChallenge(t, store, model.Challenge{Name: "Streak", Criteria: model.StreakCriteria{Days: 7}, Active: true})
	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	uc := model.UserChallenge{UserID: "user-1", ChallengeID: c.ID, StartedAt: started}
	require.NoError(t, store.CreateUserChallenge(ctx, &uc))
	assert.Equal(t, model.ChallengeActive, uc.Status)

	require.NoError(t, store.UpdateUserChallengeProgress(ctx, uc.ID, model.Progress{"streak_count": 2, "last_streak_date": "2024-06-03"}, 2))

	active, err := store.GetActiveUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Streak)
	count, ok := active[0].Progress.Int("streak_count")
	require.True(t, ok)
	assert.Equal(t, 2, count)
	assert.True(t, active[0].StartedAt.Equal(started))

	done := started.Add(72 * time.Hour)
	require.NoError(t, store.FinishUserChallenge(ctx, uc.ID, model.ChallengeCompleted, model.Progress{"streak_count": 7}, done))

	err = store.FinishUserChallenge(ctx, uc.ID, model.ChallengeFailed, nil, done)
	assert.ErrorIs(t, err, common.ErrChallengeNotActive)
	err = store.UpdateUserChallengeProgress(ctx, uc.ID, nil, 0)
	assert.ErrorIs(t, err, common.ErrChallengeNotActive)
	err = store.FinishUserChallenge(ctx, uc.ID, model.ChallengeActive, nil, done)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	active, err = store.GetActiveUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.GetUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.ChallengeCompleted, all[0].Status)
	require.NotNil(t, all[0].CompletedAt)
	assert.True(t, all[0].CompletedAt.Equal(done))

	// A finished attempt no longer blocks a new one.
	ok, err := store.CanStartChallenge(ctx, "user-1", c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompleteUserChallenge(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	c := saveTestChallenge(t, store, model.Challenge{Name: "Saver", Criteria: model.SavingsCriteria{Target: 100}, RewardXP: 50, RewardBadge: "saver", Active: true})
	uc := model.UserChallenge{UserID: "user-1", ChallengeID: c.ID, StartedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, store.CreateUserChallenge(ctx, &uc))

	completion := service.Completion{
		UserChallengeID: uc.ID,
		UserID:          "user-1",
		Progress:        model.Progress{"total_saved": 150.0},
		CompletedAt:     time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC),
		XP:              50,
		Badge:           "saver",
	}

	result, err := store.CompleteUserChallenge(ctx, completion)
	require.NoError(t, err)
	assert.Equal(t, service.CompletionResult{TotalXP: 50, BadgeAwarded: true}, result)

	// A second writer loses the transition and issues nothing.
	_, err = store.CompleteUserChallenge(ctx, completion)
	assert.ErrorIs(t, err, common.ErrChallengeNotActive)

	xp, err := store.GetUserXP(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 50, xp)

	all, err := store.GetUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.ChallengeCompleted, all[0].Status)
}

func TestCompleteUserChallenge_RewardFailureKeepsChallengeActive(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	c := saveTestChallenge(t, store, model.Challenge{Name: "Saver", Criteria: model.SavingsCriteria{Target: 100}, RewardXP: 50, Active: true})
	uc := model.UserChallenge{UserID: "user-1", ChallengeID: c.ID, StartedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, store.CreateUserChallenge(ctx, &uc))

	_, err := store.db.ExecContext(ctx, `DROP TABLE user_profiles`)
	require.NoError(t, err)

	_, err = store.CompleteUserChallenge(ctx, service.Completion{
		UserChallengeID: uc.ID,
		UserID:          "user-1",
		CompletedAt:     time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC),
		XP:              50,
	})
	require.Error(t, err)

	active, err := store.GetActiveUserChallenges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1, "the finish must roll back with the failed award")
	assert.Equal(t, uc.ID, active[0].ID)
	assert.Nil(t, active[0].CompletedAt)
}

func TestRewards(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	xp, err := store.GetUserXP(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, xp)

	total, err := store.AwardXP(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, total)
	total, err = store.AwardXP(ctx, "user-1", 25)
	require.NoError(t, err)
	assert.Equal(t, 75, total)

	awarded, err := store.AwardBadge(ctx, "user-1", "saver")
	require.NoError(t, err)
	assert.True(t, awarded)
	awarded, err = store.AwardBadge(ctx, "user-1", "saver")
	require.NoError(t, err)
	assert.False(t, awarded)

	badges, err := store.GetUserBadges(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"saver"}, badges)

	require.NoError(t, store.SetCategoryBudget(ctx, "user-1", "Dining", 120))
	require.NoError(t, store.SetCategoryBudget(ctx, "user-1", "Dining", 90))
	budgets, err := store.GetCategoryBudgets(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Dining": 90}, budgets)

	assert.Error(t, store.SetCategoryBudget(ctx, "user-1", "Dining", -1))
}
