package device

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// defaultSampleInterval is how often the tracker polls the driver.
// Coarse enough for the query tool to keep up, fine enough to catch the
// peak of a multi-second generation pass.
const defaultSampleInterval = 50 * time.Millisecond

// Session is one tracking window over the device-wide memory counter.
type Session interface {
	// Stop halts sampling and waits for the poller to exit. It returns
	// the first error the poller hit, if any.
	Stop() error
	// PeakMB returns the highest driver-reported used memory observed
	// during the window, in MB.
	PeakMB() float64
}

// MemoryTracker samples driver-reported device memory out of band from
// the allocator. It sees everything resident on the device, including
// context overhead the allocator never accounts for.
type MemoryTracker struct {
	device   Device
	interval time.Duration
}

// NewMemoryTracker creates a tracker for the given device.
func NewMemoryTracker(dev Device) *MemoryTracker {
	return &MemoryTracker{device: dev, interval: defaultSampleInterval}
}

// Track starts a polling session. The caller must Stop it before
// reading the peak.
func (t *MemoryTracker) Track() Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &pollSession{cancel: cancel}
	s.wg.Add(1)
	go s.loop(ctx, t.device, t.interval)
	return s
}

type pollSession struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	peakMB float64
	err    error
}

func (s *pollSession) loop(ctx context.Context, dev Device, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		usedMB, err := queryUsedMB(ctx, dev)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		if usedMB > s.peakMB {
			s.peakMB = usedMB
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the poller and waits for it to exit.
func (s *pollSession) Stop() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// PeakMB returns the peak observed so far.
func (s *pollSession) PeakMB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakMB
}

func queryUsedMB(ctx context.Context, dev Device) (float64, error) {
	out, err := runSMI(ctx,
		"--query-gpu=memory.used",
		"--format=csv,noheader,nounits",
		"-i", strconv.Itoa(dev.Index),
	)
	if err != nil {
		return 0, errors.Wrap(err, "querying driver memory counter")
	}

	usedMB, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing driver memory counter %q", strings.TrimSpace(string(out)))
	}
	return usedMB, nil
}
