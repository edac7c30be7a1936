package domain

import "fmt"

// SessionNotFoundError indicates no session exists for the requested
// kernel.
type SessionNotFoundError struct {
	KernelID string
}

func (e *SessionNotFoundError) Error() string {
	if e.KernelID == "" {
		return "session not found"
	}
	return fmt.Sprintf("no session recorded for kernel %s", e.KernelID)
}

// InvalidStateError indicates a session carried a state string outside
// the recognized lifecycle.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid session state %q", e.State)
}
