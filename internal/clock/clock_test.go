package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := NewFixed(at)

	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now())
}

func TestFuncClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	c := FuncClock(func() time.Time {
		calls++
		return start.AddDate(0, 0, calls)
	})

	assert.Equal(t, start.AddDate(0, 0, 1), c.Now())
	assert.Equal(t, start.AddDate(0, 0, 2), c.Now())
}

func TestOrReal(t *testing.T) {
	fixed := NewFixed(time.Unix(0, 0))
	assert.Equal(t, fixed, OrReal(fixed))
	assert.IsType(t, RealClock{}, OrReal(nil))
}
