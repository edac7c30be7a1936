package testutil

import "time"

// sessionData holds all data for a session row to be inserted.
type sessionData struct {
	kernelID        string
	name            string
	path            string
	provisionerKind string
	clientKind      string
	connectionFile  string
	state           string
	createdAt       time.Time
	updatedAt       time.Time
	stoppedAt       *time.Time
}

// defaultSession returns a sessionData with sensible defaults.
func defaultSession(kernelID string) sessionData {
	now := time.Now()
	return sessionData{
		kernelID:  kernelID,
		name:      kernelID, // Default name is the kernel ID
		state:     "starting",
		createdAt: now,
		updatedAt: now,
	}
}

// SessionOption configures a session during builder setup.
type SessionOption func(*sessionData)

// Name sets the session name.
func Name(name string) SessionOption {
	return func(s *sessionData) { s.name = name }
}

// Path sets the working directory or document path.
func Path(path string) SessionOption {
	return func(s *sessionData) { s.path = path }
}

// ProvisionerKind sets the provisioner kind name.
func ProvisionerKind(kind string) SessionOption {
	return func(s *sessionData) { s.provisionerKind = kind }
}

// ClientKind sets the dispatched client kind name.
func ClientKind(kind string) SessionOption {
	return func(s *sessionData) { s.clientKind = kind }
}

// ConnectionFile sets the connection file path.
func ConnectionFile(path string) SessionOption {
	return func(s *sessionData) { s.connectionFile = path }
}

// State sets the session state. Terminal states (stopped, failed)
// automatically set stoppedAt to now when not set explicitly.
func State(state string) SessionOption {
	return func(s *sessionData) {
		s.state = state
		if (state == "stopped" || state == "failed") && s.stoppedAt == nil {
			now := time.Now()
			s.stoppedAt = &now
		}
	}
}

// CreatedAt sets the created_at timestamp.
func CreatedAt(t time.Time) SessionOption {
	return func(s *sessionData) { s.createdAt = t }
}

// UpdatedAt sets the updated_at timestamp.
func UpdatedAt(t time.Time) SessionOption {
	return func(s *sessionData) { s.updatedAt = t }
}

// StoppedAt sets the stopped_at timestamp explicitly.
func StoppedAt(t time.Time) SessionOption {
	return func(s *sessionData) { s.stoppedAt = &t }
}
