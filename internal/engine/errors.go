package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/sandbox"
)

// Error represents a failure detected by the engine before or while
// talking to the boundary.
//
// Errors include:
//   - Missing dependency: fewer resolvable dependencies than declared
//   - Temporary dependency: a draft id was declared as a dependency
//   - Stopped: the engine no longer accepts requests
//
// The engine reports these through EvaluationResponse.Err() using Message,
// so callers that only look at the response see the plain text.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ComponentID identifies the component under evaluation.
	ComponentID string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes engine errors and evaluation outcomes.
type ErrorCode string

const (
	// ErrCodeLoadTimeout indicates the boundary did not finish loading in time.
	ErrCodeLoadTimeout ErrorCode = "LOAD_TIMEOUT"

	// ErrCodeMissingDependency indicates a declared dependency had no value.
	ErrCodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"

	// ErrCodeTemporaryDependency indicates a dependency on an unsaved draft.
	ErrCodeTemporaryDependency ErrorCode = "TEMPORARY_DEPENDENCY"

	// ErrCodeEvaluationTimeout indicates no reply arrived within timeout_ms.
	ErrCodeEvaluationTimeout ErrorCode = "EVALUATION_TIMEOUT"

	// ErrCodeRuntimeError indicates the formula itself failed.
	ErrCodeRuntimeError ErrorCode = "RUNTIME_ERROR"

	// ErrCodeMalformedResponse indicates the boundary reply was unusable.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// ErrCodeCancelled indicates the caller's context ended first.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodeStopped indicates the engine was stopped.
	ErrCodeStopped ErrorCode = "STOPPED"

	// ErrCodeUnmounted indicates the boundary was unmounted.
	ErrCodeUnmounted ErrorCode = "UNMOUNTED"

	// ErrCodeInvalidRequest indicates a request failed validation and was
	// never sent to the sandbox.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// MsgStopped is the response error for requests the engine will never run.
const MsgStopped = "engine stopped"

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ComponentID != "" {
		return fmt.Sprintf("%s: %s (component=%s)", e.Code, e.Message, e.ComponentID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsMissingDependency returns true if the error is a missing dependency error.
// Uses errors.As to handle wrapped errors.
func IsMissingDependency(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeMissingDependency
	}
	return false
}

// NewMissingDependencyError creates an Error for an incomplete dependency map.
func NewMissingDependencyError(componentID string, expected, found int, missing string) *Error {
	return &Error{
		Code:        ErrCodeMissingDependency,
		Message:     fmt.Sprintf("Expected %d dependencies but got %d", expected, found),
		ComponentID: componentID,
		Details: map[string]string{
			"expected":      fmt.Sprintf("%d", expected),
			"found":         fmt.Sprintf("%d", found),
			"first_missing": missing,
		},
	}
}

// NewTemporaryDependencyError creates an Error for a dependency on a draft.
func NewTemporaryDependencyError(componentID string, index int) *Error {
	return &Error{
		Code:        ErrCodeTemporaryDependency,
		Message:     fmt.Sprintf("dependency %d refers to an unsaved component", index),
		ComponentID: componentID,
	}
}

// Classify maps a failed response's error text to an ErrorCode.
// Returns "" for a successful response.
func Classify(errMsg string, ok bool) ErrorCode {
	if ok {
		return ""
	}
	switch {
	case errMsg == sandbox.MsgLoadTimeout:
		return ErrCodeLoadTimeout
	case sandbox.IsTimeoutMessage(errMsg):
		return ErrCodeEvaluationTimeout
	case errMsg == sandbox.MsgCancelled:
		return ErrCodeCancelled
	case errMsg == sandbox.MsgMalformed:
		return ErrCodeMalformedResponse
	case errMsg == sandbox.MsgUnmounted:
		return ErrCodeUnmounted
	case errMsg == MsgStopped:
		return ErrCodeStopped
	case strings.HasPrefix(errMsg, ir.InvalidRequestPrefix):
		return ErrCodeInvalidRequest
	default:
		return ErrCodeRuntimeError
	}
}
