// Package strixerr defines the typed error kinds that cross component
// boundaries in Strix, per the error handling design (§7): errors that
// cross the tool boundary are serialised back to the model, while errors
// inside the engine are fatal only when they make further progress
// impossible.
package strixerr

import (
	"errors"
	"fmt"
)

// Kind classifies a Strix error for retry logic and escalation policy.
type Kind string

const (
	KindConfig             Kind = "config"
	KindSandboxUnavailable Kind = "sandbox_unavailable"
	KindSandboxTimeout     Kind = "sandbox_timeout"
	KindLLMRateLimited     Kind = "llm_rate_limited"
	KindLLMFatal           Kind = "llm_fatal"
	KindToolError          Kind = "tool_error"
	KindAgentStuck         Kind = "agent_stuck"
	KindAgentExhausted     Kind = "agent_exhausted"
	KindCancelled          Kind = "cancelled"
)

// retryable reports the default retry policy for a Kind; callers may
// still override via WithRetryable when a specific failure disagrees
// with the kind's usual behavior.
func (k Kind) retryable() bool {
	switch k {
	case KindLLMRateLimited, KindSandboxTimeout:
		return true
	default:
		return false
	}
}

// Error is the structured error value threaded through Strix's
// components: a Kind, an optional wrapped cause, and a retryability bit.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	retryable bool
}

// New constructs an Error of the given kind with the kind's default
// retry policy.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, retryable: kind.retryable()}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, retryable: kind.retryable()}
}

// WithRetryable overrides the kind's default retry policy.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.retryable = retryable
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the operation that produced this error may
// be retried.
func (e *Error) Retryable() bool { return e.retryable }

// Is supports errors.Is comparisons against a bare Kind-tagged Error
// (Cause and Message are ignored for the comparison).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind of err if it is, or wraps, a *Error.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.retryable
	}
	return false
}
