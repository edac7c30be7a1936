// Package domain holds the pure domain model for kernel sessions: the
// Session entity, its lifecycle states, and the persistence interface.
// It has no infrastructure dependencies; storage backends live under
// internal/infrastructure.
package domain

import "time"

// SessionState represents the lifecycle state of a kernel session.
type SessionState string

const (
	// SessionStateStarting indicates the kernel launch is underway.
	SessionStateStarting SessionState = "starting"

	// SessionStateConnected indicates the kernel is up with a client
	// attached.
	SessionStateConnected SessionState = "connected"

	// SessionStateStopped indicates the kernel was shut down.
	SessionStateStopped SessionState = "stopped"

	// SessionStateFailed indicates the kernel could not be started or
	// died unexpectedly.
	SessionStateFailed SessionState = "failed"
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized session state.
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStateStarting, SessionStateConnected, SessionStateStopped, SessionStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states a session cannot leave.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateStopped || s == SessionStateFailed
}

// Session is one kernel's persistent record: which provisioner launched
// it, which client was dispatched to it, and where its connection file
// lives. Fields are unexported to enforce encapsulation; use the
// constructor and getters.
type Session struct {
	id              int64
	kernelID        string
	name            string
	path            string
	provisionerKind string
	clientKind      string
	connectionFile  string
	state           SessionState

	createdAt time.Time
	updatedAt time.Time
	stoppedAt *time.Time
}

// NewSession creates a Session for a kernel in the given state. The ID
// is left zero; the persistence layer assigns it on first save.
func NewSession(kernelID string, state SessionState) *Session {
	now := time.Now()
	return &Session{
		kernelID:  kernelID,
		state:     state,
		createdAt: now,
		updatedAt: now,
	}
}

// ReconstituteSession rebuilds a Session from stored data, typically
// when hydrating a database row.
func ReconstituteSession(
	id int64,
	kernelID, name, path string,
	provisionerKind, clientKind, connectionFile string,
	state SessionState,
	createdAt, updatedAt time.Time,
	stoppedAt *time.Time,
) *Session {
	return &Session{
		id:              id,
		kernelID:        kernelID,
		name:            name,
		path:            path,
		provisionerKind: provisionerKind,
		clientKind:      clientKind,
		connectionFile:  connectionFile,
		state:           state,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		stoppedAt:       stoppedAt,
	}
}

// ID returns the database identifier, or 0 before the first save.
func (s *Session) ID() int64 {
	return s.id
}

// SetID sets the database identifier. Called by the persistence layer
// after inserting a new session.
func (s *Session) SetID(id int64) {
	s.id = id
}

// KernelID returns the kernel this session records.
func (s *Session) KernelID() string {
	return s.kernelID
}

// Name returns the human-readable session name.
func (s *Session) Name() string {
	return s.name
}

// Path returns the working directory or document the kernel serves.
func (s *Session) Path() string {
	return s.path
}

// ProvisionerKind returns the kind name of the provisioner that
// launched the kernel.
func (s *Session) ProvisionerKind() string {
	return s.provisionerKind
}

// ClientKind returns the kind name of the client the registry
// dispatched for the kernel.
func (s *Session) ClientKind() string {
	return s.clientKind
}

// ConnectionFile returns the on-disk connection file path, or "" for
// backends without one.
func (s *Session) ConnectionFile() string {
	return s.connectionFile
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// CreatedAt returns when this session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// UpdatedAt returns when this session was last modified.
func (s *Session) UpdatedAt() time.Time {
	return s.updatedAt
}

// StoppedAt returns when the kernel stopped, or nil while it is up.
func (s *Session) StoppedAt() *time.Time {
	return s.stoppedAt
}

// SetName sets the human-readable session name.
func (s *Session) SetName(name string) {
	s.name = name
	s.updatedAt = time.Now()
}

// SetPath sets the working directory or document path.
func (s *Session) SetPath(path string) {
	s.path = path
	s.updatedAt = time.Now()
}

// SetProvisionerKind records which provisioner kind launched the kernel.
func (s *Session) SetProvisionerKind(kindName string) {
	s.provisionerKind = kindName
	s.updatedAt = time.Now()
}

// SetClientKind records which client kind the registry dispatched.
func (s *Session) SetClientKind(kindName string) {
	s.clientKind = kindName
	s.updatedAt = time.Now()
}

// SetConnectionFile records the kernel's connection file path.
func (s *Session) SetConnectionFile(path string) {
	s.connectionFile = path
	s.updatedAt = time.Now()
}

// MarkConnected transitions the session to the connected state.
func (s *Session) MarkConnected() {
	s.state = SessionStateConnected
	s.updatedAt = time.Now()
}

// MarkStopped transitions the session to the stopped state and records
// when the kernel went down.
func (s *Session) MarkStopped() {
	now := time.Now()
	s.state = SessionStateStopped
	s.stoppedAt = &now
	s.updatedAt = now
}

// MarkFailed transitions the session to the failed state. A failed
// kernel is down, so stoppedAt is recorded as well.
func (s *Session) MarkFailed() {
	now := time.Now()
	s.state = SessionStateFailed
	s.stoppedAt = &now
	s.updatedAt = now
}
