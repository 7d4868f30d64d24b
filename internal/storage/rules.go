package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spendlens/internal/model"
)

const ruleColumns = `id, user_id, merchant_pattern, category, created_at, updated_at`

// GetUserRules returns the user's rules in precedence order.
func (s *SQLStorage) GetUserRules(ctx context.Context, userID string) ([]model.MerchantCategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM merchant_category_patterns
		WHERE user_id = $1
		ORDER BY priority, created_at, id
	`, userID)
}

// GetSystemRules returns the rules without an owning user in precedence order.
func (s *SQLStorage) GetSystemRules(ctx context.Context) ([]model.MerchantCategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM merchant_category_patterns
		WHERE user_id IS NULL
		ORDER BY priority, created_at, id
	`)
}

func (s *SQLStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.MerchantCategoryRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MerchantCategoryRule
	for rows.Next() {
		var rule model.MerchantCategoryRule
		var userID sql.NullString
		if err := rows.Scan(&rule.ID, &userID, &rule.MerchantPattern, &rule.Category, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merchant rule: %w", err)
		}
		if userID.Valid {
			rule.UserID = &userID.String
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant rules: %w", err)
	}
	return rules, nil
}

// SeedSystemRules inserts the system rules whose pattern is not yet present,
// keeping their order as precedence. It returns the number inserted.
func (s *SQLStorage) SeedSystemRules(ctx context.Context, rules []model.MerchantCategoryRule) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range rules {
		if err := validateRule(&rules[i]); err != nil {
			return 0, fmt.Errorf("rule at index %d: %w", i, err)
		}
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for i, rule := range rules {
			var exists int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM merchant_category_patterns
				WHERE user_id IS NULL AND merchant_pattern = $1
			`, rule.MerchantPattern).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check system rule: %w", err)
			}
			if exists > 0 {
				continue
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO merchant_category_patterns
					(id, user_id, merchant_pattern, category, priority, created_at, updated_at)
				VALUES ($1, NULL, $2, $3, $4, $5, $6)
			`, uuid.NewString(), rule.MerchantPattern, rule.Category, i, now, now); err != nil {
				return fmt.Errorf("failed to insert system rule %q: %w", rule.MerchantPattern, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		s.logger.Info("Seeded system category rules", "inserted", inserted, "total", len(rules))
	}
	return inserted, nil
}

// ApplyCategoryOverride upserts the user's rule for patternKey and moves the
// user's transactions whose merchant name, or else description, equals the
// key. Both sweeps and the upsert commit together.
func (s *SQLStorage) ApplyCategoryOverride(ctx context.Context, userID, patternKey, category string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(patternKey, "patternKey"); err != nil {
		return 0, err
	}
	if err := validateString(category, "category"); err != nil {
		return 0, err
	}

	var updated int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO merchant_category_patterns
				(id, user_id, merchant_pattern, category, priority, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6)
			ON CONFLICT (user_id, merchant_pattern)
			DO UPDATE SET category = excluded.category, updated_at = excluded.updated_at
		`, uuid.NewString(), userID, patternKey, category, now, now); err != nil {
			return fmt.Errorf("failed to upsert user rule: %w", err)
		}

		byMerchant, err := tx.ExecContext(ctx, `
			UPDATE transactions SET transaction_category = $1
			WHERE merchant_name = $2
			AND connection_id IN (SELECT id FROM connections WHERE user_id = $3)
		`, category, patternKey, userID)
		if err != nil {
			return fmt.Errorf("failed to update transactions by merchant: %w", err)
		}

		// Rows already moved by the merchant sweep are not counted twice.
		byDescription, err := tx.ExecContext(ctx, `
			UPDATE transactions SET transaction_category = $1
			WHERE description = $2
			AND (merchant_name IS NULL OR merchant_name <> $2)
			AND connection_id IN (SELECT id FROM connections WHERE user_id = $3)
		`, category, patternKey, userID)
		if err != nil {
			return fmt.Errorf("failed to update transactions by description: %w", err)
		}

		for _, res := range []sql.Result{byMerchant, byDescription} {
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			updated += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}
