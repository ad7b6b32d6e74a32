package effects

import "errors"

var (
	// ErrInvalidParameter indicates an effect parameter that can never work,
	// e.g. a zero step size or an out-of-range channel value. Returned before
	// any tick runs.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrShuttingDown indicates the scheduler has been poisoned and refuses
	// to start new effects.
	ErrShuttingDown = errors.New("scheduler is shutting down")
)
