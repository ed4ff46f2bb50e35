package device

import (
	"time"

	"github.com/pkg/errors"
)

// Timer measures one fully drained device interval. Pending device work
// is drained immediately before the interval opens and again before it
// closes, so consecutive measurements never overlap.
type Timer struct {
	now func() time.Time
}

// NewTimer creates a timer backed by the monotonic clock.
func NewTimer() *Timer {
	return &Timer{now: time.Now}
}

// NewTimerWithClock creates a timer with an injected clock. Tests use
// this to make the measured intervals deterministic.
func NewTimerWithClock(clock func() time.Time) *Timer {
	return &Timer{now: clock}
}

// Time runs op between two drain barriers and returns the elapsed time.
//
// Arguments:
// - drain: Barrier that blocks until all pending device work completes.
// - op: The operation to measure.
//
// Returns:
// - time.Duration: Elapsed time of the drained interval.
// - error: Error from the barrier or the operation.
func (t *Timer) Time(drain func() error, op func() error) (time.Duration, error) {
	if err := drain(); err != nil {
		return 0, errors.Wrap(err, "draining device before timed interval")
	}

	start := t.now()
	if err := op(); err != nil {
		return 0, err
	}
	if err := drain(); err != nil {
		return 0, errors.Wrap(err, "draining device after timed interval")
	}

	return t.now().Sub(start), nil
}
