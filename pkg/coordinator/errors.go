package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrRunActive reports a start attempt while another run holds the
	// collection slot.
	ErrRunActive = errors.New("a run is already active")
	// ErrUnknownRun reports a stop or abort for a run that is not the
	// active one.
	ErrUnknownRun = errors.New("run is not active")
	// ErrInvalidRequest wraps start-request validation failures.
	ErrInvalidRequest = errors.New("invalid start request")

	errNoSamplers     = fmt.Errorf("%w: at least one sampler is required", ErrInvalidRequest)
	errTimeoutTooLong = fmt.Errorf("%w: poll timeout must be shorter than the sampling interval", ErrInvalidRequest)
	errBuildSampler   = fmt.Errorf("%w: failed to build sampler", ErrInvalidRequest)
)
