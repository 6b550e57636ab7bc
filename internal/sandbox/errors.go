package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBoundaryNeverMounted is returned when Evaluate is called on a boundary
// that was never mounted. It is a programmer error, not an evaluation
// failure, and is never folded into an EvaluationResponse.
var ErrBoundaryNeverMounted = errors.New("sandbox boundary was never mounted")

// Error messages carried in EvaluationResponse.Err().
const (
	MsgLoadTimeout = "load timeout"
	MsgCancelled   = "evaluation cancelled"
	MsgUnmounted   = "sandbox boundary is unmounted"
	MsgMalformed   = "malformed response from sandbox"
)

const timeoutPrefix = "evaluation timed out after "

// TimeoutMessage returns the error message for a request whose timer fired.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("%s%dms", timeoutPrefix, timeout.Milliseconds())
}

// IsTimeoutMessage reports whether msg was produced by TimeoutMessage.
func IsTimeoutMessage(msg string) bool {
	return strings.HasPrefix(msg, timeoutPrefix)
}
