// Package testutil provides test fixtures: an in-memory session
// database, a fluent session builder, and canned connection payloads.
package testutil

import (
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"

	"github.com/kernelbridge/kernelbridge/internal/infrastructure/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the session schema.
// The caller is responsible for closing the database.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(sqlite.Schema)
	require.NoError(t, err)
	return db
}
