package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kernelbridge/kernelbridge/internal/sessions/domain"
)

// sessionColumns is the column list for session queries.
const sessionColumns = `id, kernel_id, name, path, provisioner_kind, client_kind,
	connection_file, state, created_at, updated_at, stopped_at`

// sessionRepository implements domain.SessionRepository over SQLite.
type sessionRepository struct {
	db *sql.DB
}

func newSessionRepository(db *sql.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

var _ domain.SessionRepository = (*sessionRepository)(nil)

// scanSession scans one row into a SessionModel.
func scanSession(scanner interface{ Scan(...any) error }) (*SessionModel, error) {
	var model SessionModel
	err := scanner.Scan(
		&model.ID, &model.KernelID, &model.Name, &model.Path,
		&model.ProvisionerKind, &model.ClientKind, &model.ConnectionFile,
		&model.State, &model.CreatedAt, &model.UpdatedAt, &model.StoppedAt,
	)
	return &model, err
}

// Save persists a session. New sessions (ID == 0) are inserted and get
// their ID set; existing sessions are updated in place.
func (r *sessionRepository) Save(session *domain.Session) error {
	model := toSessionModel(session)

	if session.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO sessions (
				kernel_id, name, path, provisioner_kind, client_kind,
				connection_file, state, created_at, updated_at, stopped_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.KernelID, model.Name, model.Path, model.ProvisionerKind,
			model.ClientKind, model.ConnectionFile, model.State,
			model.CreatedAt, model.UpdatedAt, model.StoppedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		session.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE sessions SET
			name = ?, path = ?, provisioner_kind = ?, client_kind = ?,
			connection_file = ?, state = ?, updated_at = ?, stopped_at = ?
		WHERE id = ?`,
		model.Name, model.Path, model.ProvisionerKind, model.ClientKind,
		model.ConnectionFile, model.State, model.UpdatedAt, model.StoppedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// FindByID retrieves a session by its internal database ID.
func (r *sessionRepository) FindByID(id int64) (*domain.Session, error) {
	row := r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	)
	model, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.SessionNotFoundError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by id: %w", err)
	}
	return model.toDomain(), nil
}

// FindByKernelID retrieves the session recorded for a kernel.
func (r *sessionRepository) FindByKernelID(kernelID string) (*domain.Session, error) {
	row := r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE kernel_id = ?`, kernelID,
	)
	model, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.SessionNotFoundError{KernelID: kernelID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by kernel id: %w", err)
	}
	return model.toDomain(), nil
}

// List retrieves sessions matching the filter, newest first.
func (r *sessionRepository) List(filter domain.ListFilter) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any

	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(filter.State))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*domain.Session
	for rows.Next() {
		model, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// Delete permanently removes the session recorded for a kernel.
func (r *sessionRepository) Delete(kernelID string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE kernel_id = ?`, kernelID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.SessionNotFoundError{KernelID: kernelID}
	}
	return nil
}

// DeleteTerminal permanently removes every stopped and failed session.
func (r *sessionRepository) DeleteTerminal() (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM sessions WHERE state IN (?, ?)`,
		string(domain.SessionStateStopped), string(domain.SessionStateFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Close is a no-op: the connection is owned by the DB struct.
func (r *sessionRepository) Close() error {
	return nil
}
