package device

// Allocator exposes the peak statistics of the runtime's device memory
// arena. The harness treats it as a handle to be explicitly reset and
// drained between sub-benchmarks rather than as ambient state.
type Allocator interface {
	// PeakAllocated returns the high-water mark of bytes handed out to
	// live tensors since the last reset.
	PeakAllocated() int64
	// PeakReserved returns the high-water mark of bytes the arena held
	// from the driver since the last reset. Reserved never drops below
	// allocated.
	PeakReserved() int64
	// ResetPeakStats rebases both peaks to the current usage.
	ResetPeakStats()
	// EmptyCache returns unused reserved memory to the driver.
	EmptyCache()
}

// BytesToMB converts a byte count to decimal megabytes, matching what
// the driver tooling reports.
func BytesToMB(n int64) float64 {
	return float64(n) * 1e-6
}
