package instruments

import "errors"

var (
	// ErrAlreadyRunning is returned when a launch is refused because an
	// instruments process is already in the process table
	ErrAlreadyRunning = errors.New("an instruments process is already running")

	// ErrMissingTarget is returned when a launch spec has no device target
	ErrMissingTarget = errors.New("launch spec needs a device target")
)
