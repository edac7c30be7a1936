package sqlite

import (
	"time"

	"github.com/kernelbridge/kernelbridge/internal/sessions/domain"
)

// SessionModel is the database row shape for the sessions table. Time
// values are stored as Unix timestamps; optional columns are pointers.
type SessionModel struct {
	ID              int64
	KernelID        string
	Name            *string // nullable
	Path            *string // nullable
	ProvisionerKind *string // nullable
	ClientKind      *string // nullable
	ConnectionFile  *string // nullable
	State           string

	CreatedAt int64  // Unix timestamp
	UpdatedAt int64  // Unix timestamp
	StoppedAt *int64 // Unix timestamp, nullable
}

// toSessionModel converts a domain Session entity to its row shape.
// Empty strings become NULL so optional fields stay distinguishable
// from deliberately blank ones.
func toSessionModel(s *domain.Session) *SessionModel {
	m := &SessionModel{
		ID:        s.ID(),
		KernelID:  s.KernelID(),
		State:     string(s.State()),
		CreatedAt: s.CreatedAt().Unix(),
		UpdatedAt: s.UpdatedAt().Unix(),
	}
	if s.Name() != "" {
		name := s.Name()
		m.Name = &name
	}
	if s.Path() != "" {
		path := s.Path()
		m.Path = &path
	}
	if s.ProvisionerKind() != "" {
		provKind := s.ProvisionerKind()
		m.ProvisionerKind = &provKind
	}
	if s.ClientKind() != "" {
		clientKind := s.ClientKind()
		m.ClientKind = &clientKind
	}
	if s.ConnectionFile() != "" {
		connFile := s.ConnectionFile()
		m.ConnectionFile = &connFile
	}
	if s.StoppedAt() != nil {
		stoppedAt := s.StoppedAt().Unix()
		m.StoppedAt = &stoppedAt
	}
	return m
}

// toDomain converts a row back into a domain Session entity.
func (m *SessionModel) toDomain() *domain.Session {
	var name, path, provKind, clientKind, connFile string
	if m.Name != nil {
		name = *m.Name
	}
	if m.Path != nil {
		path = *m.Path
	}
	if m.ProvisionerKind != nil {
		provKind = *m.ProvisionerKind
	}
	if m.ClientKind != nil {
		clientKind = *m.ClientKind
	}
	if m.ConnectionFile != nil {
		connFile = *m.ConnectionFile
	}
	var stoppedAt *time.Time
	if m.StoppedAt != nil {
		t := time.Unix(*m.StoppedAt, 0)
		stoppedAt = &t
	}
	return domain.ReconstituteSession(
		m.ID,
		m.KernelID, name, path,
		provKind, clientKind, connFile,
		domain.SessionState(m.State),
		time.Unix(m.CreatedAt, 0),
		time.Unix(m.UpdatedAt, 0),
		stoppedAt,
	)
}
