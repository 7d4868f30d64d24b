package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AwardXP adds xp to the user's running total and returns the new total.
func (s *SQLStorage) AwardXP(ctx context.Context, userID string, xp int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	return awardXP(ctx, s.db, userID, xp, time.Now().UTC())
}

// AwardBadge grants badge once. It reports whether the badge was new.
func (s *SQLStorage) AwardBadge(ctx context.Context, userID, badge string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return false, err
	}
	if err := validateString(badge, "badge"); err != nil {
		return false, err
	}

	return awardBadge(ctx, s.db, userID, badge, time.Now().UTC())
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func awardXP(ctx context.Context, q querier, userID string, xp int, at time.Time) (int, error) {
	var total int
	err := q.QueryRowContext(ctx, `
		INSERT INTO user_profiles (user_id, xp, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			xp = user_profiles.xp + excluded.xp,
			updated_at = excluded.updated_at
		RETURNING xp
	`, userID, xp, at).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to award xp: %w", err)
	}
	return total, nil
}

func awardBadge(ctx context.Context, q querier, userID, badge string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO user_badges (user_id, badge, awarded_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge) DO NOTHING
	`, userID, badge, at)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetUserBadges lists the user's badges in award order.
func (s *SQLStorage) GetUserBadges(ctx context.Context, userID string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT badge FROM user_badges WHERE user_id = $1 ORDER BY awarded_at, badge`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var badges []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// GetUserXP returns the user's total, zero when nothing was awarded yet.
func (s *SQLStorage) GetUserXP(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var xp int
	err := s.db.QueryRowContext(ctx, `SELECT xp FROM user_profiles WHERE user_id = $1`, userID).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get xp: %w", err)
	}
	return xp, nil
}

// GetCategoryBudgets returns the user's stored per-category limits.
func (s *SQLStorage) GetCategoryBudgets(ctx context.Context, userID string) (map[string]float64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, monthly_limit FROM category_budgets WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	budgets := make(map[string]float64)
	for rows.Next() {
		var category string
		var limit float64
		if err := rows.Scan(&category, &limit); err != nil {
			return nil, fmt.Errorf("failed to scan category budget: %w", err)
		}
		budgets[category] = limit
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category budgets: %w", err)
	}
	return budgets, nil
}

// SetCategoryBudget upserts one of the user's limits.
func (s *SQLStorage) SetCategoryBudget(ctx context.Context, userID, category string, limit float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("budget for %s cannot be negative", category)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO category_budgets (user_id, category, monthly_limit) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = excluded.monthly_limit
	`, userID, category, limit); err != nil {
		return fmt.Errorf("failed to set category budget: %w", err)
	}
	return nil
}
