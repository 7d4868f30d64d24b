package challenge

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendlens/internal/model"
)

// DefaultBaselineWeeks is used when a spending reduction challenge does not
// say how much history to compare against.
const DefaultBaselineWeeks = 4

// BaselineWeeks returns the configured history length or the default.
func BaselineWeeks(c model.SpendingReductionCriteria) int {
	if c.BaselineWeeks > 0 {
		return c.BaselineWeeks
	}
	return DefaultBaselineWeeks
}

// BaselineRange returns the half-open history range [start, end) for a
// challenge started at startedAt.
func BaselineRange(startedAt time.Time, weeks int) (start, end time.Time) {
	return startedAt.AddDate(0, 0, -7*weeks), startedAt
}

// WeekendBaseline returns the average weekend outflow per week over the
// weeks before startedAt. Weekdays are judged in loc.
func WeekendBaseline(history []model.Transaction, startedAt time.Time, weeks int, loc *time.Location) (float64, error) {
	if weeks <= 0 {
		weeks = DefaultBaselineWeeks
	}
	if loc == nil {
		loc = time.UTC
	}
	start, end := BaselineRange(startedAt, weeks)

	window, err := parseWindow(history, loc)
	if err != nil {
		return 0, err
	}

	total := sumDebits(window, func(d datedTxn) bool {
		return !d.at.Before(start) && d.at.Before(end) && isWeekend(d.at)
	})
	return total.Div(decimal.NewFromInt(int64(weeks))).InexactFloat64(), nil
}
