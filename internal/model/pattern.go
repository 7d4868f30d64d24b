package model

import (
	"regexp"
	"time"
)

// TransactionPattern is a recurring inflow or outflow detected from a group of
// transactions sharing a description.
type TransactionPattern struct {
	Pattern     *regexp.Regexp // Case-insensitive literal match of the description
	Description string         // Lower-cased group key
	Amount      float64        // Mean signed amount of the group
	Frequency   int            // Mean interval in days, rounded
	Occurrences int
}

// Matches reports whether text matches the pattern.
func (p TransactionPattern) Matches(text string) bool {
	return p.Pattern != nil && p.Pattern.MatchString(text)
}

// SeasonalPattern is a month whose mean amount deviates from the overall mean
// by more than the seasonal threshold.
type SeasonalPattern struct {
	Month      time.Month
	Adjustment float64 // Fractional deviation, e.g. 0.2 = +20%
}

// MonthIndex returns the zero-based month (0 = January).
func (s SeasonalPattern) MonthIndex() int {
	return int(s.Month) - 1
}

// ScheduledTransaction is a future-dated transaction.
type ScheduledTransaction struct {
	Date          time.Time
	TransactionID string
	Amount        float64
}

// PatternSet is the result of one detection pass.
type PatternSet struct {
	RecurringTransactions []TransactionPattern
	RecurringPayments     []TransactionPattern
	SeasonalPatterns      []SeasonalPattern
	ScheduledTransactions []ScheduledTransaction
	// SeasonalUnavailable is set when the overall mean is zero and
	// adjustments cannot be computed.
	SeasonalUnavailable bool
}

// IsEmpty reports whether the pass found nothing.
func (p *PatternSet) IsEmpty() bool {
	return len(p.RecurringTransactions) == 0 &&
		len(p.RecurringPayments) == 0 &&
		len(p.SeasonalPatterns) == 0 &&
		len(p.ScheduledTransactions) == 0
}
