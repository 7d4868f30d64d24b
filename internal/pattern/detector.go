package pattern

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
)

const day = 24 * time.Hour

// Detector runs recurring, seasonal and scheduled detection.
type Detector struct {
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the time source used for scheduled extraction.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) {
		d.clock = c
	}
}

// WithLocation sets the zone used to bucket transactions by month.
func WithLocation(loc *time.Location) Option {
	return func(d *Detector) {
		if loc != nil {
			d.location = loc
		}
	}
}

// NewDetector creates a detector. Months are bucketed in UTC unless a
// location is given.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		clock:    clock.NewReal(),
		location: time.UTC,
		logger:   common.ComponentLogger("pattern"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clock = clock.OrReal(d.clock)
	return d
}

type dated struct {
	at  time.Time
	txn model.Transaction
}

// parseAll parses every timestamp up front so that no aggregate is computed
// from a partially valid batch.
func parseAll(transactions []model.Transaction) ([]dated, error) {
	out := make([]dated, 0, len(transactions))
	for _, txn := range transactions {
		at, err := txn.Time()
		if err != nil {
			return nil, &DetectionError{TransactionID: txn.ID, Field: FieldTimestamp, Err: err}
		}
		out = append(out, dated{txn: txn, at: at})
	}
	return out, nil
}

// Detect runs all three passes. Any unparsable date fails the whole pass with
// a *DetectionError; an empty input yields an empty set.
func (d *Detector) Detect(transactions []model.Transaction) (*model.PatternSet, error) {
	set := &model.PatternSet{}
	if len(transactions) == 0 {
		return set, nil
	}

	parsed, err := parseAll(transactions)
	if err != nil {
		return nil, err
	}

	set.RecurringTransactions, set.RecurringPayments = detectRecurring(parsed)

	seasonal, ok := d.detectSeasonal(parsed)
	set.SeasonalPatterns = seasonal
	set.SeasonalUnavailable = !ok

	set.ScheduledTransactions, err = d.ExtractScheduled(transactions)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Detected transaction patterns",
		"transactions", len(transactions),
		"recurring_transactions", len(set.RecurringTransactions),
		"recurring_payments", len(set.RecurringPayments),
		"seasonal", len(set.SeasonalPatterns),
		"scheduled", len(set.ScheduledTransactions))

	return set, nil
}

// DetectRecurring groups transactions by lower-cased description and returns
// the regular groups split into inflows and outflows. A zero mean amount is
// an outflow.
func (d *Detector) DetectRecurring(transactions []model.Transaction) (inflows, outflows []model.TransactionPattern, err error) {
	parsed, err := parseAll(transactions)
	if err != nil {
		return nil, nil, err
	}
	inflows, outflows = detectRecurring(parsed)
	return inflows, outflows, nil
}

func detectRecurring(parsed []dated) (inflows, outflows []model.TransactionPattern) {
	groups := make(map[string][]dated)
	var order []string
	for _, p := range parsed {
		key := strings.ToLower(p.txn.Description)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	for _, key := range order {
		pattern, ok := regularGroup(key, groups[key])
		if !ok {
			continue
		}
		if pattern.Amount > 0 {
			inflows = append(inflows, pattern)
		} else {
			outflows = append(outflows, pattern)
		}
	}
	return inflows, outflows
}

// regularGroup measures interval regularity. Groups whose mean interval is
// zero are never regular.
func regularGroup(key string, group []dated) (model.TransactionPattern, bool) {
	if len(group) < MinGroupSize {
		return model.TransactionPattern{}, false
	}

	sorted := make([]dated, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].at.Before(sorted[j].at)
	})

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		elapsed := sorted[i].at.Sub(sorted[i-1].at)
		intervals = append(intervals, math.Floor(float64(elapsed)/float64(day)))
	}

	avgInterval := mean(intervals)
	var variance float64
	for _, iv := range intervals {
		variance += (iv - avgInterval) * (iv - avgInterval)
	}
	variance /= float64(len(intervals))

	if variance >= avgInterval*RegularityThreshold {
		return model.TransactionPattern{}, false
	}

	var total float64
	for _, g := range sorted {
		total += g.txn.Amount
	}

	return model.TransactionPattern{
		Pattern:     common.LiteralRegex(key),
		Description: key,
		Amount:      total / float64(len(sorted)),
		Frequency:   int(math.Round(avgInterval)),
		Occurrences: len(sorted),
	}, true
}

// DetectSeasonal returns the months whose mean amount deviates from the
// overall mean by more than SeasonalThreshold, ordered by month. The boolean is
// false when the overall mean is zero and no adjustment can be computed.
func (d *Detector) DetectSeasonal(transactions []model.Transaction) ([]model.SeasonalPattern, bool, error) {
	parsed, err := parseAll(transactions)
	if err != nil {
		return nil, false, err
	}
	patterns, ok := d.detectSeasonal(parsed)
	return patterns, ok, nil
}

func (d *Detector) detectSeasonal(parsed []dated) ([]model.SeasonalPattern, bool) {
	if len(parsed) == 0 {
		return nil, true
	}

	var overall float64
	var sums [12]float64
	var counts [12]int
	for _, p := range parsed {
		m := p.at.In(d.location).Month() - 1
		sums[m] += p.txn.Amount
		counts[m]++
		overall += p.txn.Amount
	}
	overall /= float64(len(parsed))

	if overall == 0 {
		return nil, false
	}

	var patterns []model.SeasonalPattern
	for m := range 12 {
		if counts[m] == 0 {
			continue
		}
		monthly := sums[m] / float64(counts[m])
		adjustment := (monthly - overall) / overall
		if math.Abs(adjustment) > SeasonalThreshold {
			patterns = append(patterns, model.SeasonalPattern{
				Month:      time.Month(m + 1),
				Adjustment: adjustment,
			})
		}
	}
	return patterns, true
}

// ExtractScheduled returns transactions whose scheduled date is strictly
// after now, in input order.
func (d *Detector) ExtractScheduled(transactions []model.Transaction) ([]model.ScheduledTransaction, error) {
	now := d.clock.Now()

	var scheduled []model.ScheduledTransaction
	for _, txn := range transactions {
		at, present, err := txn.ScheduledTime()
		if err != nil {
			return nil, &DetectionError{TransactionID: txn.ID, Field: FieldScheduledDate, Err: err}
		}
		if !present || !at.After(now) {
			continue
		}
		scheduled = append(scheduled, model.ScheduledTransaction{
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Date:          at,
		})
	}
	return scheduled, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
