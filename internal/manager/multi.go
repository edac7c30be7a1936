package manager

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kernelbridge/kernelbridge/internal/log"
	"github.com/kernelbridge/kernelbridge/internal/provisioner"
	"github.com/kernelbridge/kernelbridge/internal/pubsub"
	"github.com/kernelbridge/kernelbridge/internal/registry"
	"github.com/kernelbridge/kernelbridge/internal/tracing"
	"github.com/kernelbridge/kernelbridge/internal/watcher"
)

// KernelNotFoundError indicates an operation referenced a kernel ID the
// manager does not hold.
type KernelNotFoundError struct {
	ID string
}

func (e *KernelNotFoundError) Error() string {
	return fmt.Sprintf("kernel not found: %s", e.ID)
}

// SessionRecord carries what the session store needs to persist about a
// started kernel.
type SessionRecord struct {
	KernelID        string
	Name            string
	Path            string
	ProvisionerKind string
	ClientKind      string
	ConnectionFile  string
}

// SessionRecorder persists kernel lifecycle transitions. The sessions
// service implements it; the manager stays decoupled from storage.
type SessionRecorder interface {
	KernelStarted(ctx context.Context, rec SessionRecord) error
	KernelStopped(ctx context.Context, kernelID string) error
}

// StartSpec describes one kernel start request.
type StartSpec struct {
	// Provisioner launches and owns the kernel. Required.
	Provisioner provisioner.Provisioner
	// Name is a human-readable label recorded in the session store.
	Name string
	// Path is the working directory or document the kernel serves.
	Path string
	// SessionKey optionally overrides the handshake key handed to the
	// client.
	SessionKey []byte
}

// MultiKernelManager runs many kernels against one shared dispatch
// registry and event broker. Kernel starts for distinct kernels only
// take the registry's read path, so they do not serialize each other.
type MultiKernelManager struct {
	mu      sync.RWMutex
	kernels map[string]*KernelManager

	registry *registry.Registry
	broker   *pubsub.Broker[KernelEvent]
	tracer   trace.Tracer
	sessions SessionRecorder
}

// MultiOption configures a MultiKernelManager.
type MultiOption func(*MultiKernelManager)

// WithMultiBroker attaches a broker shared by every managed kernel.
func WithMultiBroker(b *pubsub.Broker[KernelEvent]) MultiOption {
	return func(m *MultiKernelManager) { m.broker = b }
}

// WithMultiTracer attaches a tracer shared by every managed kernel.
func WithMultiTracer(t trace.Tracer) MultiOption {
	return func(m *MultiKernelManager) { m.tracer = t }
}

// WithSessionRecorder attaches a session store notified on kernel
// start and stop.
func WithSessionRecorder(s SessionRecorder) MultiOption {
	return func(m *MultiKernelManager) { m.sessions = s }
}

// NewMulti creates a MultiKernelManager over the shared registry.
func NewMulti(reg *registry.Registry, opts ...MultiOption) *MultiKernelManager {
	m := &MultiKernelManager{
		kernels:  make(map[string]*KernelManager),
		registry: reg,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Broker returns the shared lifecycle broker, or nil if none attached.
func (m *MultiKernelManager) Broker() *pubsub.Broker[KernelEvent] {
	return m.broker
}

// StartKernel starts a kernel per spec and returns its ID. The kernel
// is registered only after a fully successful start; a failed start
// leaves no trace in the manager.
func (m *MultiKernelManager) StartKernel(ctx context.Context, spec StartSpec) (string, error) {
	if spec.Provisioner == nil {
		return "", fmt.Errorf("start spec: provisioner is required")
	}

	km := New(spec.Provisioner, m.registry,
		WithBroker(m.broker),
		WithTracer(m.tracer),
		WithSessionKey(spec.SessionKey))

	if err := km.Start(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.kernels[km.ID()] = km
	m.mu.Unlock()

	m.recordStarted(ctx, km, spec)
	return km.ID(), nil
}

// Get returns the manager for a kernel ID.
func (m *MultiKernelManager) Get(id string) (*KernelManager, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	km, ok := m.kernels[id]
	return km, ok
}

// List returns the managed kernel IDs in sorted order.
func (m *MultiKernelManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.kernels))
	for id := range m.kernels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of managed kernels.
func (m *MultiKernelManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.kernels)
}

// ShutdownKernel stops one kernel and forgets it.
func (m *MultiKernelManager) ShutdownKernel(ctx context.Context, id string) error {
	km, ok := m.Get(id)
	if !ok {
		return &KernelNotFoundError{ID: id}
	}

	if err := km.Shutdown(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.kernels, id)
	m.mu.Unlock()

	m.recordStopped(ctx, id)
	return nil
}

// ShutdownAll stops every kernel, best-effort. Kernels that stop
// cleanly are forgotten; failures are collected and the stuck kernels
// stay registered for a retry.
func (m *MultiKernelManager) ShutdownAll(ctx context.Context) error {
	m.mu.RLock()
	managers := make([]*KernelManager, 0, len(m.kernels))
	for _, km := range m.kernels {
		managers = append(managers, km)
	}
	m.mu.RUnlock()

	var failed *multierror.Error
	for _, km := range managers {
		if err := km.Shutdown(ctx); err != nil {
			failed = multierror.Append(failed, err)
			continue
		}
		m.mu.Lock()
		delete(m.kernels, km.ID())
		m.mu.Unlock()
		m.recordStopped(ctx, km.ID())
	}
	return failed.ErrorOrNil()
}

// WatchMappings merges the mappings manifest at path into the shared
// registry and keeps re-merging whenever the file changes, debounced.
// Merge failures are logged and never fatal: a half-edited file must
// not take down running kernels. Watching stops when ctx is cancelled.
func (m *MultiKernelManager) WatchMappings(ctx context.Context, path string) error {
	src := registry.NewFileSource(path)
	m.mergeMappings(ctx, src, path)

	w, err := watcher.New(watcher.DefaultConfig(path))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}

	log.SafeGo("mappings-watcher", func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				m.mergeMappings(ctx, src, path)
			}
		}
	})
	return nil
}

// mergeMappings re-merges one source into the shared registry under a
// span, logging partial failures.
func (m *MultiKernelManager) mergeMappings(ctx context.Context, src registry.Source, path string) {
	_, span := m.tracer.Start(ctx, tracing.SpanRegistryMerge,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(tracing.AttrMappingSource, path)))
	defer span.End()

	if err := m.registry.Merge(src); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(log.CatRegistry, "mappings merge reported failures",
			"source", path, "error", err)
		return
	}
	span.SetStatus(codes.Ok, "")
	log.Debug(log.CatRegistry, "mappings merged",
		"source", path, "mappings", m.registry.Len())
}

// recordStarted persists the session row for a started kernel. Storage
// failures are logged, not propagated: the kernel is already up.
func (m *MultiKernelManager) recordStarted(ctx context.Context, km *KernelManager, spec StartSpec) {
	if m.sessions == nil {
		return
	}

	connFile := ""
	if withFile, ok := km.prov.(interface{ ConnectionFile() string }); ok {
		connFile = withFile.ConnectionFile()
	}

	rec := SessionRecord{
		KernelID:        km.ID(),
		Name:            spec.Name,
		Path:            spec.Path,
		ProvisionerKind: km.ProvisionerKind(),
		ClientKind:      km.ClientKind(),
		ConnectionFile:  connFile,
	}
	if err := m.sessions.KernelStarted(ctx, rec); err != nil {
		log.ErrorErr(log.CatKernel, "failed to record session start", err, "id", km.ID())
	}
}

// recordStopped marks the session row stopped. Best-effort, like
// recordStarted.
func (m *MultiKernelManager) recordStopped(ctx context.Context, kernelID string) {
	if m.sessions == nil {
		return
	}
	if err := m.sessions.KernelStopped(ctx, kernelID); err != nil {
		log.ErrorErr(log.CatKernel, "failed to record session stop", err, "id", kernelID)
	}
}
