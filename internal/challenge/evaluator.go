// Package challenge scores a user's transactions against declarative
// challenge criteria and applies the resulting state transitions.
package challenge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendlens/internal/model"
)

// RefundsCategory is the category counted by smart shopping challenges.
const RefundsCategory = "Refunds"

// Progress keys written by the evaluator.
const (
	KeyTotalSpent          = "total_spent"
	KeyCategorySpent       = "category_spent"
	KeyCurrentSpending     = "current_spending"
	KeyHistoricalAverage   = "historical_average"
	KeyReductionPercentage = "reduction_percentage"
	KeyTransactionCount    = "transaction_count"
	KeyTotalSaved          = "total_saved"
	KeyStreakCount         = "streak_count"
	KeyLastStreakDate      = "last_streak_date"
	KeyCategorySpending    = "category_spending"
	KeyRefundTotal         = "refund_total"
)

const dateLayout = "2006-01-02"

// Input is everything one evaluation needs. Baseline is only read by
// spending reduction challenges and Budgets only by category budget ones.
type Input struct {
	Now           time.Time
	Location      *time.Location
	Baseline      *float64
	Budgets       map[string]float64
	UserChallenge model.UserChallenge
	Challenge     model.Challenge
	Transactions  []model.Transaction
}

// Outcome is the computed next state. At most one of Completed and Failed
// drives the transition; Completed takes precedence.
type Outcome struct {
	Progress  model.Progress
	Streak    int
	Completed bool
	Failed    bool
}

type datedTxn struct {
	at  time.Time
	txn model.Transaction
}

// Evaluate computes updated progress and the completion and failure flags for
// one user challenge. Unknown criteria leave progress unchanged.
func Evaluate(in Input) (Outcome, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	progress := in.UserChallenge.Progress.Clone()
	out := Outcome{Progress: progress, Streak: in.UserChallenge.Streak}

	window, err := parseWindow(in.Transactions, loc)
	if err != nil {
		return Outcome{}, err
	}

	switch c := in.Challenge.Criteria.(type) {
	case model.NoSpendCriteria:
		started := in.UserChallenge.StartedAt
		excluded := make(map[string]struct{}, len(c.ExcludeCategories))
		for _, cat := range c.ExcludeCategories {
			excluded[cat] = struct{}{}
		}
		total := sumDebits(window, func(d datedTxn) bool {
			if d.at.Before(started) {
				return false
			}
			_, skip := excluded[d.txn.TransactionCategory]
			return !skip
		})
		progress[KeyTotalSpent] = total.InexactFloat64()
		limit := decimal.NewFromFloat(c.MaxSpend)
		out.Completed = total.LessThanOrEqual(limit)
		out.Failed = total.GreaterThan(limit)

	case model.ReducedSpendingCriteria:
		tw, err := ParseTimeWindow(c.TimeWindow)
		if err != nil {
			return Outcome{}, err
		}
		total := sumDebits(window, func(d datedTxn) bool {
			return d.txn.TransactionCategory == c.Category && tw.Contains(d.at)
		})
		progress[KeyCategorySpent] = total.InexactFloat64()
		limit := decimal.NewFromFloat(c.MaxSpend)
		out.Completed = total.LessThanOrEqual(limit)
		out.Failed = total.GreaterThan(limit)

	case model.SpendingReductionCriteria:
		// Spending is weekend-only; the failure threshold counts the whole window.
		count := len(window)
		current := sumDebits(window, func(d datedTxn) bool { return isWeekend(d.at) })
		progress[KeyCurrentSpending] = current.InexactFloat64()
		progress[KeyTransactionCount] = count

		met := false
		if in.Baseline != nil && *in.Baseline > 0 {
			historical := decimal.NewFromFloat(*in.Baseline)
			reduction := historical.Sub(current).Div(historical).Mul(decimal.NewFromInt(100))
			progress[KeyHistoricalAverage] = historical.InexactFloat64()
			progress[KeyReductionPercentage] = reduction.InexactFloat64()
			met = reduction.GreaterThanOrEqual(decimal.NewFromFloat(c.ReductionTarget).Mul(decimal.NewFromInt(100)))
		}
		out.Completed = met
		out.Failed = !met && count >= c.MinTransactions

	case model.SavingsCriteria:
		total := sumCredits(window, func(datedTxn) bool { return true })
		progress[KeyTotalSaved] = total.InexactFloat64()
		out.Completed = total.GreaterThanOrEqual(decimal.NewFromFloat(c.Target))

	case model.StreakCriteria:
		last := in.UserChallenge.StartedAt.In(loc).Format(dateLayout)
		if s, ok := progress.String(KeyLastStreakDate); ok && s != "" {
			last = s
		}
		today := in.Now.In(loc).Format(dateLayout)

		gap, err := daysBetween(last, today)
		if err != nil {
			return Outcome{}, err
		}

		count, ok := progress.Int(KeyStreakCount)
		if !ok {
			count = in.UserChallenge.Streak
		}
		consecutive := gap == 1
		if consecutive {
			count++
		} else {
			count = 0
		}

		progress[KeyStreakCount] = count
		progress[KeyLastStreakDate] = today
		out.Streak = count
		out.Completed = count >= c.Days
		out.Failed = !consecutive

	case model.CategoryBudgetCriteria:
		spending := make(map[string]float64, len(in.Budgets))
		over := false
		for _, category := range sortedKeys(in.Budgets) {
			spent := sumDebits(window, func(d datedTxn) bool {
				return d.txn.TransactionCategory == category
			})
			spending[category] = spent.InexactFloat64()
			if spent.GreaterThan(decimal.NewFromFloat(in.Budgets[category])) {
				over = true
			}
		}
		progress[KeyCategorySpending] = spending
		out.Completed = !over
		out.Failed = over

	case model.SmartShoppingCriteria:
		var count int
		total := sumCredits(window, func(d datedTxn) bool {
			if d.txn.TransactionCategory != RefundsCategory {
				return false
			}
			count++
			return true
		})
		progress[KeyRefundTotal] = total.InexactFloat64()
		progress[KeyTransactionCount] = count
		out.Completed = total.GreaterThanOrEqual(decimal.NewFromFloat(c.TargetSavings)) &&
			count >= c.MinTransactions

	default:
		// Unknown or missing criteria: nothing to score.
	}

	if out.Completed {
		out.Failed = false
	}
	return out, nil
}

func parseWindow(transactions []model.Transaction, loc *time.Location) ([]datedTxn, error) {
	out := make([]datedTxn, 0, len(transactions))
	for _, txn := range transactions {
		at, err := txn.Time()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
		out = append(out, datedTxn{txn: txn, at: at.In(loc)})
	}
	return out, nil
}

// sumDebits totals the absolute value of outflows accepted by keep. keep is
// only called for outflows.
func sumDebits(window []datedTxn, keep func(datedTxn) bool) decimal.Decimal {
	total := decimal.Zero
	for _, d := range window {
		if d.txn.Amount >= 0 || !keep(d) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(d.txn.Amount).Abs())
	}
	return total
}

// sumCredits totals inflows accepted by keep. keep is only called for inflows.
func sumCredits(window []datedTxn, keep func(datedTxn) bool) decimal.Decimal {
	total := decimal.Zero
	for _, d := range window {
		if d.txn.Amount <= 0 || !keep(d) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(d.txn.Amount))
	}
	return total
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// daysBetween returns the calendar-day distance between two dates.
func daysBetween(from, to string) (int, error) {
	a, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("invalid streak date %q: %w", from, err)
	}
	b, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("invalid streak date %q: %w", to, err)
	}
	return int(b.Sub(a).Hours() / 24), nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TimeWindow is a daily clock range in minutes after midnight. A window whose
// end precedes its start wraps past midnight.
type TimeWindow struct {
	Start int
	End   int
}

// ParseTimeWindow parses "HH:MM-HH:MM".
func ParseTimeWindow(s string) (TimeWindow, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeWindow{}, fmt.Errorf("invalid time window %q", s)
	}
	a, err := parseClock(start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}
	b, err := parseClock(end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}
	return TimeWindow{Start: a, End: b}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t's clock time, at minute resolution, falls within
// the window. Both ends are inclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	if w.Start <= w.End {
		return minute >= w.Start && minute <= w.End
	}
	return minute >= w.Start || minute <= w.End
}
