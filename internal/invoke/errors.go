package invoke

import (
	"errors"
	"fmt"

	"github.com/aerostat-labs/windscout/internal/unit"
)

// PermanentError wraps a failure retrying cannot fix. The invoker stops
// immediately instead of burning the remaining attempt budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Attempt records one invocation try. Attempts stay inside the invoker;
// only the final attempt's error text ever reaches a caller, via
// StageError.Root.
type Attempt struct {
	Index     int    `json:"index"`
	Unit      string `json:"unit"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// StageError is the single error surfaced after the attempt budget is
// exhausted. Root is the LAST attempt's error verbatim; earlier
// attempts are in the log, never in the message, so the message shape
// does not change with the retry budget.
type StageError struct {
	Unit     string
	Root     string
	Attempts []Attempt
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %s. See attempt log for history.", e.Unit, e.Root)
}

// isPermanent reports whether err must not be retried.
func isPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, unit.ErrRejected)
}
