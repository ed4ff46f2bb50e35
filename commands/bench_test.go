package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptsunny/optimum/device"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	defer func() { benchArgs = benchFlags{} }()
	return rootCmd.Execute()
}

func TestBenchRequiresModelFlag(t *testing.T) {
	err := execute(t, "bench")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

func TestBenchGPTQRequiresModelPath(t *testing.T) {
	// Must abort before any environment or model access.
	t.Setenv(device.VisibleDevicesEnv, "0,1")

	err := execute(t, "bench", "--model", "gpt2", "--gptq")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--gptq-model")
}

func TestBenchRejectsMultiDeviceVisibility(t *testing.T) {
	t.Setenv(device.VisibleDevicesEnv, "0,1")

	err := execute(t, "bench", "--model", "gpt2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single device")
}

func TestBenchRejectsUnsetVisibility(t *testing.T) {
	t.Setenv(device.VisibleDevicesEnv, "")

	err := execute(t, "bench", "--model", "gpt2")
	assert.Error(t, err)
}
