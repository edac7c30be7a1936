package domain

// ListFilter provides filtering options for listing sessions.
type ListFilter struct {
	// State filters sessions by their current state.
	// If empty, all states are included.
	State SessionState

	// Limit restricts the number of sessions returned.
	// If 0, no limit is applied.
	Limit int
}

// SessionRepository defines the persistence interface for Session
// entities. Implementations may use SQLite, in-memory storage, or
// other backends.
type SessionRepository interface {
	// Save persists a session. For new sessions (ID == 0) it inserts a
	// record and sets the ID; otherwise it updates the existing record.
	Save(session *Session) error

	// FindByID retrieves a session by its internal database ID.
	// Returns SessionNotFoundError if no matching session exists.
	FindByID(id int64) (*Session, error)

	// FindByKernelID retrieves the session recorded for a kernel.
	// Returns SessionNotFoundError if no matching session exists.
	FindByKernelID(kernelID string) (*Session, error)

	// List retrieves sessions matching the filter, ordered by
	// created_at descending (newest first).
	List(filter ListFilter) ([]*Session, error)

	// Delete permanently removes the session recorded for a kernel.
	// Returns SessionNotFoundError if no matching session exists.
	Delete(kernelID string) error

	// DeleteTerminal permanently removes every stopped and failed
	// session, returning how many were removed.
	DeleteTerminal() (int64, error)

	// Close releases any resources held by the repository.
	Close() error
}
