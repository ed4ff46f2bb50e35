package device

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerObservesPeak(t *testing.T) {
	restore := runSMI
	defer func() { runSMI = restore }()

	// Driver counter rises then falls. The session must keep the peak.
	samples := []string{"1024", "2048", "4096", "3072"}
	var calls int64
	runSMI = func(ctx context.Context, args ...string) ([]byte, error) {
		i := atomic.AddInt64(&calls, 1) - 1
		if int(i) >= len(samples) {
			i = int64(len(samples) - 1)
		}
		return []byte(samples[i] + "\n"), nil
	}

	tracker := NewMemoryTracker(Device{Index: 0})
	tracker.interval = time.Millisecond

	sess := tracker.Track()
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= int64(len(samples))
	}, time.Second, time.Millisecond)

	require.NoError(t, sess.Stop())
	assert.Equal(t, 4096.0, sess.PeakMB())
}

func TestTrackerSurfacesQueryError(t *testing.T) {
	restore := runSMI
	defer func() { runSMI = restore }()

	runSMI = func(ctx context.Context, args ...string) ([]byte, error) {
		return []byte("not a number"), nil
	}

	tracker := NewMemoryTracker(Device{Index: 0})
	tracker.interval = time.Millisecond

	sess := tracker.Track()
	time.Sleep(10 * time.Millisecond)
	assert.Error(t, sess.Stop())
}

func TestTimerMeasuresDrainedInterval(t *testing.T) {
	base := time.Unix(0, 0)
	ticks := []time.Duration{0, 125 * time.Millisecond}
	i := 0
	clock := func() time.Time {
		tm := base.Add(ticks[i])
		i++
		return tm
	}

	drains := 0
	timer := NewTimerWithClock(clock)
	elapsed, err := timer.Time(
		func() error { drains++; return nil },
		func() error { return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, 125*time.Millisecond, elapsed)
	assert.Equal(t, 2, drains, "must drain before and after the interval")
}

func TestTimerPropagatesOpError(t *testing.T) {
	timer := NewTimer()
	_, err := timer.Time(
		func() error { return nil },
		func() error { return assert.AnError },
	)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBytesToMB(t *testing.T) {
	assert.Equal(t, 1.0, BytesToMB(1_000_000))
	assert.Equal(t, 0.0, BytesToMB(0))
}
