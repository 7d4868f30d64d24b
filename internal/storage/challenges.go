package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

const challengeColumns = `id, name, description, criteria, reward_xp, reward_badge, active`

const userChallengeColumns = `id, user_id, challenge_id, status, progress, streak, started_at, completed_at`

// GetChallenges returns the full challenge catalog.
func (s *SQLStorage) GetChallenges(ctx context.Context) ([]model.Challenge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var challenges []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return challenges, nil
}

// GetChallenge retrieves one challenge definition.
func (s *SQLStorage) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	c, err := scanChallenge(s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("challenge %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanChallenge(row rowScanner) (*model.Challenge, error) {
	var (
		c        model.Challenge
		criteria string
		badge    sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &criteria, &c.RewardXP, &badge, &c.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}
	decoded, err := model.DecodeCriteria([]byte(criteria))
	if err != nil {
		return nil, fmt.Errorf("challenge %s: %w", c.ID, err)
	}
	c.Criteria = decoded
	c.RewardBadge = badge.String
	return &c, nil
}

// SaveChallenge upserts a challenge definition, assigning an ID when empty.
func (s *SQLStorage) SaveChallenge(ctx context.Context, c *model.Challenge) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateChallenge(c); err != nil {
		return err
	}

	criteria, err := model.EncodeCriteria(c.Criteria)
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, name, description, criteria, reward_xp, reward_badge, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			criteria = excluded.criteria,
			reward_xp = excluded.reward_xp,
			reward_badge = excluded.reward_badge,
			active = excluded.active
	`, c.ID, c.Name, c.Description, string(criteria), c.RewardXP, nullString(c.RewardBadge), c.Active, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// GetActiveUserChallenges lists the user's attempts still in progress.
func (s *SQLStorage) GetActiveUserChallenges(ctx context.Context, userID string) ([]model.UserChallenge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.queryUserChallenges(ctx, `
		SELECT `+userChallengeColumns+` FROM user_challenges
		WHERE user_id = $1 AND status = $2
		ORDER BY started_at, id
	`, userID, string(model.ChallengeActive))
}

// GetUserChallenges lists every attempt of the user.
func (s *SQLStorage) GetUserChallenges(ctx context.Context, userID string) ([]model.UserChallenge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.queryUserChallenges(ctx, `
		SELECT `+userChallengeColumns+` FROM user_challenges
		WHERE user_id = $1
		ORDER BY started_at, id
	`, userID)
}

func (s *SQLStorage) queryUserChallenges(ctx context.Context, query string, args ...any) ([]model.UserChallenge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.UserChallenge
	for rows.Next() {
		var (
			uc          model.UserChallenge
			status      string
			progress    string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &status, &progress, &uc.Streak, &uc.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user challenge: %w", err)
		}
		uc.Status = model.ChallengeStatus(status)
		uc.Progress = model.Progress{}
		if progress != "" {
			if err := json.Unmarshal([]byte(progress), &uc.Progress); err != nil {
				return nil, fmt.Errorf("user challenge %s: failed to decode progress: %w", uc.ID, err)
			}
		}
		if completedAt.Valid {
			t := completedAt.Time
			uc.CompletedAt = &t
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user challenges: %w", err)
	}
	return out, nil
}

// CanStartChallenge reports whether the challenge exists, is active and has
// no attempt of the user in progress. A missing challenge is ErrNotFound.
func (s *SQLStorage) CanStartChallenge(ctx context.Context, userID, challengeID string) (bool, error) {
	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if !c.Active {
		return false, nil
	}

	var running int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_challenges
		WHERE user_id = $1 AND challenge_id = $2 AND status = $3
	`, userID, challengeID, string(model.ChallengeActive)).Scan(&running); err != nil {
		return false, fmt.Errorf("failed to check running challenges: %w", err)
	}
	return running == 0, nil
}

// CreateUserChallenge inserts a new attempt. A second active attempt at the
// same challenge is rejected with ErrDuplicateEntry.
func (s *SQLStorage) CreateUserChallenge(ctx context.Context, uc *model.UserChallenge) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if uc == nil {
		return fmt.Errorf("%w: user challenge", ErrNilParameter)
	}
	if err := validateString(uc.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(uc.ChallengeID, "challengeID"); err != nil {
		return err
	}

	if uc.ID == "" {
		uc.ID = uuid.NewString()
	}
	if uc.Status == "" {
		uc.Status = model.ChallengeActive
	}
	if uc.StartedAt.IsZero() {
		uc.StartedAt = time.Now().UTC()
	}
	progress, err := encodeProgress(uc.Progress)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_challenges (id, user_id, challenge_id, status, progress, streak, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uc.ID, uc.UserID, uc.ChallengeID, string(uc.Status), progress, uc.Streak, uc.StartedAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("challenge %s already running: %w", uc.ChallengeID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create user challenge: %w", err)
	}
	return nil
}

// UpdateUserChallengeProgress stores new progress on an active attempt.
func (s *SQLStorage) UpdateUserChallengeProgress(ctx context.Context, id string, progress model.Progress, streak int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	encoded, err := encodeProgress(progress)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE user_challenges SET progress = $1, streak = $2
		WHERE id = $3 AND status = $4
	`, encoded, streak, id, string(model.ChallengeActive))
	if err != nil {
		return fmt.Errorf("failed to update challenge progress: %w", err)
	}
	return requireOneRow(res, id)
}

// FinishUserChallenge moves an active attempt to a terminal status. The
// update is conditional on the row still being active, so only one writer can
// perform the transition; the others get ErrChallengeNotActive.
func (s *SQLStorage) FinishUserChallenge(ctx context.Context, id string, status model.ChallengeStatus, progress model.Progress, completedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTerminalStatus(status); err != nil {
		return err
	}
	encoded, err := encodeProgress(progress)
	if err != nil {
		return err
	}

	return finishUserChallenge(ctx, s.db, id, status, encoded, completedAt)
}

func finishUserChallenge(ctx context.Context, q querier, id string, status model.ChallengeStatus, progress string, completedAt time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE user_challenges SET status = $1, progress = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`, string(status), progress, completedAt.UTC(), id, string(model.ChallengeActive))
	if err != nil {
		return fmt.Errorf("failed to finish challenge: %w", err)
	}
	return requireOneRow(res, id)
}

// CompleteUserChallenge finishes an active attempt as completed and awards
// its XP and badge in the same transaction, so a failed reward leaves the
// attempt active for the next pass.
func (s *SQLStorage) CompleteUserChallenge(ctx context.Context, c service.Completion) (service.CompletionResult, error) {
	var result service.CompletionResult
	if err := validateContext(ctx); err != nil {
		return result, err
	}
	if err := validateString(c.UserChallengeID, "userChallengeID"); err != nil {
		return result, err
	}
	if err := validateString(c.UserID, "userID"); err != nil {
		return result, err
	}
	if c.XP < 0 {
		return result, fmt.Errorf("%w: reward xp cannot be negative", ErrInvalidChallenge)
	}
	encoded, err := encodeProgress(c.Progress)
	if err != nil {
		return result, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := finishUserChallenge(ctx, tx, c.UserChallengeID, model.ChallengeCompleted, encoded, c.CompletedAt); err != nil {
			return err
		}
		now := time.Now().UTC()
		if c.XP > 0 {
			total, err := awardXP(ctx, tx, c.UserID, c.XP, now)
			if err != nil {
				return err
			}
			result.TotalXP = total
		}
		if c.Badge != "" {
			awarded, err := awardBadge(ctx, tx, c.UserID, c.Badge, now)
			if err != nil {
				return err
			}
			result.BadgeAwarded = awarded
		}
		return nil
	})
	if err != nil {
		return service.CompletionResult{}, err
	}
	return result, nil
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user challenge %s: %w", id, common.ErrChallengeNotActive)
	}
	return nil
}

func encodeProgress(p model.Progress) (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode progress: %w", err)
	}
	return string(data), nil
}
