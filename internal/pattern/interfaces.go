// Package pattern derives recurring, seasonal and scheduled patterns from a
// snapshot of transactions. Detection is pure and performs no I/O.
package pattern

import "github.com/Veraticus/spendlens/internal/model"

// Analyzer produces a pattern set from already-fetched transactions.
type Analyzer interface {
	// Detect runs every detection pass over transactions.
	Detect(transactions []model.Transaction) (*model.PatternSet, error)
}

// Ensure Detector implements Analyzer interface.
var _ Analyzer = (*Detector)(nil)

const (
	// RegularityThreshold is the maximum interval variance, as a fraction of
	// the mean interval, for a group to count as regular.
	RegularityThreshold = 0.2
	// SeasonalThreshold is the minimum absolute monthly deviation retained.
	SeasonalThreshold = 0.10
	// MinGroupSize is the smallest group considered for recurrence.
	MinGroupSize = 2
)
