package pattern

import (
	"fmt"

	"github.com/Veraticus/spendlens/internal/common"
)

// Fields reported by DetectionError.
const (
	FieldTimestamp     = "timestamp"
	FieldScheduledDate = "scheduled_date"
)

// DetectionError reports the transaction that aborted a detection pass. It
// matches common.ErrPatternDetection with errors.Is.
type DetectionError struct {
	Err           error
	TransactionID string
	Field         string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%v: transaction %s has invalid %s: %v",
		common.ErrPatternDetection, e.TransactionID, e.Field, e.Err)
}

func (e *DetectionError) Unwrap() []error {
	return []error{common.ErrPatternDetection, e.Err}
}
