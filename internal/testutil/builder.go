package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// Builder accumulates session rows and inserts them in order.
type Builder struct {
	t        *testing.T
	db       *sql.DB
	sessions []sessionData
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sql.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithSession adds a session row with optional configuration.
func (b *Builder) WithSession(kernelID string, opts ...SessionOption) *Builder {
	session := defaultSession(kernelID)
	for _, opt := range opts {
		opt(&session)
	}
	b.sessions = append(b.sessions, session)
	return b
}

// Build inserts all accumulated data into the database.
func (b *Builder) Build() {
	b.t.Helper()
	for _, session := range b.sessions {
		b.insertSession(session)
	}
}

func (b *Builder) insertSession(s sessionData) {
	b.t.Helper()

	// Empty optional fields are stored as NULL, matching the repository.
	nullable := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	var stoppedAt *int64
	if s.stoppedAt != nil {
		unix := s.stoppedAt.Unix()
		stoppedAt = &unix
	}

	_, err := b.db.Exec(
		`INSERT INTO sessions (kernel_id, name, path, provisioner_kind, client_kind, connection_file, state, created_at, updated_at, stopped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.kernelID, nullable(s.name), nullable(s.path),
		nullable(s.provisionerKind), nullable(s.clientKind), nullable(s.connectionFile),
		s.state, s.createdAt.Unix(), s.updatedAt.Unix(), stoppedAt,
	)
	require.NoError(b.t, err)
}
