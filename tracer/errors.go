// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidArgument  = errors.New("invalid parameters")
	ErrProbeNotFound    = errors.New("unable to locate an stlink")
	ErrNoTarget         = errors.New("stlink is not connected to a device")
	ErrChipUnsupported  = errors.New("SWO output not supported for device")
	ErrTraceUnsupported = errors.New("stlink does not support tracing")
	ErrProbeIO          = errors.New("probe i/o error")
	ErrConfiguration    = errors.New("unable to enable trace mode")
)

// process exit codes
const (
	ExitSuccess          = 0
	ExitInvalidParams    = 1
	ExitProbeNotFound    = 2
	ExitMissingDevice    = 3
	ExitUnsupportedChip  = 4
	ExitUnsupportedProbe = 5
	ExitStateError       = 6
)

// ExitCode maps an error returned by this package onto the exit code of the
// trace tool.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidArgument):
		return ExitInvalidParams
	case errors.Is(err, ErrProbeNotFound):
		return ExitProbeNotFound
	case errors.Is(err, ErrNoTarget):
		return ExitMissingDevice
	case errors.Is(err, ErrChipUnsupported):
		return ExitUnsupportedChip
	case errors.Is(err, ErrTraceUnsupported):
		return ExitUnsupportedProbe
	default:
		return ExitStateError
	}
}
