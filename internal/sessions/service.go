// Package sessions is the application layer over the session store. It
// wraps the repository with a read-through TTL cache for the hot
// find-by-kernel-ID path and implements the manager's SessionRecorder
// so kernel lifecycle transitions land in the store automatically.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/kernelbridge/kernelbridge/internal/cachemanager"
	"github.com/kernelbridge/kernelbridge/internal/log"
	"github.com/kernelbridge/kernelbridge/internal/manager"
	"github.com/kernelbridge/kernelbridge/internal/sessions/domain"
)

// DefaultCacheTTL bounds how stale a cached session may get. Lifecycle
// transitions invalidate eagerly, so the TTL only covers writers
// outside this process.
const DefaultCacheTTL = 5 * time.Minute

// Service exposes session store operations to the manager and the CLI.
type Service struct {
	repo     domain.SessionRepository
	cache    cachemanager.CacheManager[string, *domain.Session]
	byKernel *cachemanager.ReadThroughCache[string, *domain.Session, string]
	ttl      time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache replaces the default in-memory cache.
func WithCache(c cachemanager.CacheManager[string, *domain.Session]) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithCacheTTL overrides the per-entry TTL for cached sessions.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// NewService creates a Service over the given repository.
func NewService(repo domain.SessionRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repo: repo,
		ttl:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cachemanager.NewInMemoryCacheManager[string, *domain.Session](
			"sessions", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	}
	s.byKernel = cachemanager.NewReadThroughCache(
		s.cache,
		func(ctx context.Context, kernelID string) (*domain.Session, error) {
			return s.repo.FindByKernelID(kernelID)
		},
		false,
	)
	return s
}

var _ manager.SessionRecorder = (*Service)(nil)

// KernelStarted records a freshly started kernel. The kernel is up with
// a client dispatched by the time the manager calls this, so the
// session lands directly in the connected state.
func (s *Service) KernelStarted(ctx context.Context, rec manager.SessionRecord) error {
	session := domain.NewSession(rec.KernelID, domain.SessionStateStarting)
	session.SetName(rec.Name)
	session.SetPath(rec.Path)
	session.SetProvisionerKind(rec.ProvisionerKind)
	session.SetClientKind(rec.ClientKind)
	session.SetConnectionFile(rec.ConnectionFile)
	session.MarkConnected()

	if err := s.repo.Save(session); err != nil {
		return fmt.Errorf("recording session start: %w", err)
	}
	s.invalidate(ctx, rec.KernelID)

	log.Info(log.CatDB, "session recorded",
		"kernel_id", rec.KernelID,
		"provisioner", rec.ProvisionerKind,
		"client", rec.ClientKind)
	return nil
}

// KernelStopped transitions the kernel's session to stopped. A missing
// session is an error: the manager only reports stops for kernels it
// previously reported as started.
func (s *Service) KernelStopped(ctx context.Context, kernelID string) error {
	session, err := s.repo.FindByKernelID(kernelID)
	if err != nil {
		return fmt.Errorf("recording session stop: %w", err)
	}

	session.MarkStopped()
	if err := s.repo.Save(session); err != nil {
		return fmt.Errorf("recording session stop: %w", err)
	}
	s.invalidate(ctx, kernelID)

	log.Info(log.CatDB, "session stopped", "kernel_id", kernelID)
	return nil
}

// KernelFailed transitions the kernel's session to failed.
func (s *Service) KernelFailed(ctx context.Context, kernelID string) error {
	session, err := s.repo.FindByKernelID(kernelID)
	if err != nil {
		return fmt.Errorf("recording session failure: %w", err)
	}

	session.MarkFailed()
	if err := s.repo.Save(session); err != nil {
		return fmt.Errorf("recording session failure: %w", err)
	}
	s.invalidate(ctx, kernelID)

	log.Warn(log.CatDB, "session failed", "kernel_id", kernelID)
	return nil
}

// FindByKernelID returns the session for a kernel, served from cache
// when possible.
func (s *Service) FindByKernelID(ctx context.Context, kernelID string) (*domain.Session, error) {
	return s.byKernel.Get(ctx, kernelID, kernelID, s.ttl)
}

// FindByID returns a session by its internal database ID. IDs are not
// cached; this path is rare.
func (s *Service) FindByID(ctx context.Context, id int64) (*domain.Session, error) {
	return s.repo.FindByID(id)
}

// List returns sessions matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Session, error) {
	return s.repo.List(filter)
}

// Delete removes the session recorded for a kernel.
func (s *Service) Delete(ctx context.Context, kernelID string) error {
	if err := s.repo.Delete(kernelID); err != nil {
		return err
	}
	s.invalidate(ctx, kernelID)
	return nil
}

// DeleteStopped removes every stopped and failed session, returning how
// many were removed. The cache is flushed wholesale: the removed kernel
// IDs are not tracked individually.
func (s *Service) DeleteStopped(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteTerminal()
	if err != nil {
		return 0, err
	}
	if err := s.cache.Flush(ctx); err != nil {
		log.ErrorErr(log.CatCache, "failed to flush session cache", err)
	}
	log.Info(log.CatDB, "terminal sessions pruned", "count", removed)
	return removed, nil
}

// Close releases the underlying repository.
func (s *Service) Close() error {
	return s.repo.Close()
}

func (s *Service) invalidate(ctx context.Context, kernelID string) {
	if err := s.cache.Delete(ctx, kernelID); err != nil {
		log.ErrorErr(log.CatCache, "failed to invalidate session cache", err, "kernel_id", kernelID)
	}
}
