//go:build !opencv

// Package opencv provides a forward-only engine backed by OpenCV's DNN
// module. This file is the capability-gated stand-in compiled when the
// opencv build tag is not set: construction fails immediately with an
// error naming the missing backend, instead of failing later inside a
// measurement pass.
package opencv

import (
	"github.com/aptsunny/optimum/device"
	"github.com/aptsunny/optimum/inference"
)

// NewEngine reports the backend as unavailable in this build.
func NewEngine(modelPath string, dev device.Device) (inference.Engine, error) {
	return nil, inference.ErrBackendUnavailable(
		"opencv",
		"build with -tags opencv and an OpenCV runtime with CUDA support",
	)
}
