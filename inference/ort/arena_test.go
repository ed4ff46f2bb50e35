package ort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaTracksPeaks(t *testing.T) {
	a := newArena()

	a.alloc(1_000_000)
	a.alloc(3_000_000)
	a.free(3_000_000)

	assert.Equal(t, int64(4_000_000), a.PeakAllocated())
	assert.Equal(t, roundUpToBlock(4_000_000), a.PeakReserved())
	assert.GreaterOrEqual(t, a.PeakReserved(), a.PeakAllocated())
}

func TestArenaReservedSurvivesFree(t *testing.T) {
	a := newArena()

	a.alloc(10 * reserveBlock)
	a.free(10 * reserveBlock)

	// Freed blocks stay cached until explicitly emptied.
	a.ResetPeakStats()
	assert.Equal(t, int64(0), a.PeakAllocated())
	assert.Equal(t, 10*reserveBlock, a.PeakReserved())

	a.EmptyCache()
	a.ResetPeakStats()
	assert.Equal(t, int64(0), a.PeakReserved())
}

func TestArenaResetRebasesToCurrent(t *testing.T) {
	a := newArena()

	a.alloc(5_000_000)
	a.free(2_000_000)
	a.ResetPeakStats()

	assert.Equal(t, int64(3_000_000), a.PeakAllocated())
	assert.Equal(t, roundUpToBlock(5_000_000), a.PeakReserved())
}

func TestRoundUpToBlock(t *testing.T) {
	assert.Equal(t, int64(0), roundUpToBlock(0))
	assert.Equal(t, reserveBlock, roundUpToBlock(1))
	assert.Equal(t, reserveBlock, roundUpToBlock(reserveBlock))
	assert.Equal(t, 2*reserveBlock, roundUpToBlock(reserveBlock+1))
}

func TestAppendColumn(t *testing.T) {
	// (2, 2) matrix grows to (2, 3).
	flat := []int64{1, 2, 3, 4}
	got := appendColumn(flat, []int64{9, 8}, 2, 2)
	assert.Equal(t, []int64{1, 2, 9, 3, 4, 8}, got)
}
