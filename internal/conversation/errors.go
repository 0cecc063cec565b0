package conversation

import (
	"errors"
	"fmt"
)

// EmptyInputError reports a blank or whitespace-only user submission. It is
// returned before any state changes and before any network call.
type EmptyInputError struct{}

func (EmptyInputError) Error() string { return "conversation: empty input" }

// ErrEmptyInput is the EmptyInputError value returned by State and Session.
var ErrEmptyInput error = EmptyInputError{}

var (
	// ErrSessionBusy is returned when a turn is submitted while a completion
	// for the same session is still outstanding.
	ErrSessionBusy = errors.New("conversation: session busy")
	// ErrSessionNotFound is returned for unknown, expired or destroyed sessions.
	ErrSessionNotFound = errors.New("conversation: session not found")
)

// CompletionProviderError wraps any provider failure: transport errors, rate
// limits, malformed or empty responses. The user turn that triggered it stays
// in history; no assistant turn is written.
type CompletionProviderError struct {
	Provider string
	Cause    error
}

func (e *CompletionProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("conversation: completion failed: %v", e.Cause)
	}
	return fmt.Sprintf("conversation: %s completion failed: %v", e.Provider, e.Cause)
}

func (e *CompletionProviderError) Unwrap() error {
	return e.Cause
}
