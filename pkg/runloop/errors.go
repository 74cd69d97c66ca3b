package runloop

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRetriesExhausted is returned when a command runs out of attempts
	// without a more specific error to surface
	ErrRetriesExhausted = errors.New("command retries exhausted")
)

// TimeoutError is returned when no frame carrying the expected index
// appeared in the log before the deadline.
type TimeoutError struct {
	Index   int
	Field   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for a frame with %s=%d", e.Timeout, e.Field, e.Index)
}

// WriteError is returned when a command could not be confirmed as picked
// up by the engine. The command may or may not have executed; callers
// resolve the ambiguity with a recovery read before surfacing it.
type WriteError struct {
	Index    int
	Attempts int
	Cause    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("command %d not acknowledged after %d attempts: %v", e.Index, e.Attempts, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// EngineError reports an unrecoverable engine failure: an accessibility
// registration failure, a script exception, or an engine that accepted a
// command and went silent. The run must be torn down and relaunched.
type EngineError struct {
	Reason string
	Cause  error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine failure: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("engine failure: %s", e.Reason)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// IsFatal reports whether err means the engine is beyond saving. Fatal
// errors short-circuit every retry path.
func IsFatal(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr)
}
