// Package sqlite persists kernel sessions with database/sql over the
// ncruces SQLite driver. The schema is applied on open; there is no
// migration framework, new columns are added to the schema const.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kernelbridge/kernelbridge/internal/log"
	"github.com/kernelbridge/kernelbridge/internal/sessions/domain"
)

// Schema is the full session store schema, applied idempotently on
// every open.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kernel_id TEXT NOT NULL UNIQUE,
	name TEXT,
	path TEXT,
	provisioner_kind TEXT,
	client_kind TEXT,
	connection_file TEXT,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	stopped_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

// DB owns the SQLite connection and hands out repositories bound to it.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if necessary) the session database at path,
// applies pragmas and the schema, and returns the handle. The parent
// directory is created 0700: session rows can reference connection
// files carrying HMAC keys, so the store is owner-only.
func NewDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(Schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	log.Debug(log.CatDB, "session database opened", "path", path)
	return &DB{conn: conn}, nil
}

// SessionRepository returns a repository bound to this database.
func (d *DB) SessionRepository() domain.SessionRepository {
	return newSessionRepository(d.conn)
}

// Connection exposes the underlying *sql.DB for callers that need raw
// queries (tests, diagnostics).
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
