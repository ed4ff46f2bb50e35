// Package device manages the single accelerator the benchmark runs
// against: visibility resolution, driver probing, the allocator peak
// statistics contract, and the out-of-band memory tracker.
package device

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// VisibleDevicesEnv is the environment variable naming the devices the
// process may touch. The benchmark requires exactly one entry.
const VisibleDevicesEnv = "CUDA_VISIBLE_DEVICES"

// probeTimeout bounds a single driver tool invocation.
const probeTimeout = 10 * time.Second

// runSMI invokes the driver query tool. Overridable in tests.
var runSMI = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "nvidia-smi", args...).Output()
}

// Device identifies the accelerator all measurements run on.
type Device struct {
	Index int
}

// Visible resolves the benchmark device from the visibility environment
// variable. Multi-device visibility is rejected: ambiguous placement
// would invalidate both the timing and the memory readings.
func Visible() (Device, error) {
	raw, ok := os.LookupEnv(VisibleDevicesEnv)
	if !ok || strings.TrimSpace(raw) == "" {
		return Device{}, errors.Errorf("%s must be set to a single device index", VisibleDevicesEnv)
	}

	entries := strings.Split(raw, ",")
	if len(entries) != 1 {
		return Device{}, errors.Errorf(
			"%s lists %d devices; set it to a single device index, multi-device benchmarking is not supported",
			VisibleDevicesEnv, len(entries),
		)
	}

	index, err := strconv.Atoi(strings.TrimSpace(entries[0]))
	if err != nil {
		return Device{}, errors.Wrapf(err, "parsing %s entry %q", VisibleDevicesEnv, entries[0])
	}
	return Device{Index: index}, nil
}

// Detect confirms the driver answers for the device before any model is
// loaded.
//
// Arguments:
// - ctx: Context bounding the probe.
// - dev: The device to probe.
//
// Returns:
// - error: Error if no compatible accelerator is reachable.
func Detect(ctx context.Context, dev Device) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := runSMI(ctx, "--query-gpu=name", "--format=csv,noheader", "-i", strconv.Itoa(dev.Index))
	if err != nil {
		return errors.Wrap(err, "a CUDA-capable accelerator is required for benchmarking")
	}
	if strings.TrimSpace(string(out)) == "" {
		return errors.Errorf("driver reported no device at index %d", dev.Index)
	}
	return nil
}
