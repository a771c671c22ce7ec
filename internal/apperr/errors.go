package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra data. Callers match
// with errors.Is.
var (
	// ErrSessionAlreadyActive means another quiz session is already running
	// for the room. Losers of a concurrent start race get this and should
	// treat it as a no-op success.
	ErrSessionAlreadyActive = errors.New("a quiz session is already active for this room")

	// ErrInvalidStateTransition means a room or session status change was
	// attempted against the forward-only lifecycle graph.
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// ValidationError reports bad caller input. Recoverable by correcting the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// LimitExceededError reports that an entitlement ceiling was hit.
type LimitExceededError struct {
	Requested       int
	MaxAllowed      int
	RequiresUpgrade bool
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded: requested %d, allowed %d", e.Requested, e.MaxAllowed)
}

// ContentGenerationFailed wraps a failed call to the content-generation
// collaborator. Retryable by the host.
type ContentGenerationFailed struct {
	Err error
}

func (e *ContentGenerationFailed) Error() string {
	return fmt.Sprintf("content generation failed: %v", e.Err)
}

func (e *ContentGenerationFailed) Unwrap() error { return e.Err }

// PersistenceError wraps a transient store failure. Retryable with backoff
// left to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AuthenticationError means the caller's identity could not be verified.
// Triggers the re-login flow; ReturnPath preserves the in-flight intent.
type AuthenticationError struct {
	ReturnPath string
}

func (e *AuthenticationError) Error() string {
	return "authentication required"
}
