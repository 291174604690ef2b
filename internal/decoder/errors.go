package decoder

import (
	"fmt"
	"time"
)

// DecodeError is a hard failure of the external decoder process. Output
// carries the decoder's raw failure text so callers can inspect it for
// repairable signatures.
type DecodeError struct {
	Output   string
	ExitCode int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder failed with exit code %d: %s", e.ExitCode, e.Output)
}

// TimeoutError means the decoder exceeded the caller-enforced deadline.
// Timeouts are never retried.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("decoder timed out after %s", e.After)
}
