package ort

import (
	"sync"

	"github.com/aptsunny/optimum/device"
)

// reserveBlock is the arena growth granularity. The arena requests
// device memory in fixed-size blocks and caches freed blocks for
// reuse, so reserved only ever grows until the cache is emptied.
const reserveBlock int64 = 2 << 20

// arena accounts for every device tensor the engine creates and serves
// the allocator peak statistics the harness reads.
type arena struct {
	mu            sync.Mutex
	allocated     int64
	reserved      int64
	peakAllocated int64
	peakReserved  int64
}

var _ device.Allocator = (*arena)(nil)

func newArena() *arena {
	return &arena{}
}

func roundUpToBlock(n int64) int64 {
	if n <= 0 {
		return 0
	}
	blocks := (n + reserveBlock - 1) / reserveBlock
	return blocks * reserveBlock
}

func (a *arena) alloc(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocated += n
	if need := roundUpToBlock(a.allocated); need > a.reserved {
		a.reserved = need
	}
	if a.allocated > a.peakAllocated {
		a.peakAllocated = a.allocated
	}
	if a.reserved > a.peakReserved {
		a.peakReserved = a.reserved
	}
}

func (a *arena) free(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocated -= n
}

// PeakAllocated implements device.Allocator.
func (a *arena) PeakAllocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peakAllocated
}

// PeakReserved implements device.Allocator.
func (a *arena) PeakReserved() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peakReserved
}

// ResetPeakStats rebases both peaks to current usage.
func (a *arena) ResetPeakStats() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peakAllocated = a.allocated
	a.peakReserved = a.reserved
}

// EmptyCache returns cached blocks to the driver, shrinking reserved to
// what live allocations still need.
func (a *arena) EmptyCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved = roundUpToBlock(a.allocated)
}
