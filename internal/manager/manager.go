// Package manager orchestrates kernel lifecycles: launching a kernel
// through its provisioner, selecting a client kind through the dispatch
// registry, and running the load/connect handshake.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kernelbridge/kernelbridge/internal/client"
	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/log"
	"github.com/kernelbridge/kernelbridge/internal/provisioner"
	"github.com/kernelbridge/kernelbridge/internal/pubsub"
	"github.com/kernelbridge/kernelbridge/internal/registry"
	"github.com/kernelbridge/kernelbridge/internal/tracing"
)

// rollbackTimeout bounds the provisioner shutdown that unwinds a
// partially started kernel.
const rollbackTimeout = 10 * time.Second

// ErrAlreadyStarted is returned by Start when the kernel is already up.
var ErrAlreadyStarted = fmt.Errorf("manager: kernel already started")

// ErrNotStarted is returned by Restart when there is nothing to restart.
var ErrNotStarted = fmt.Errorf("manager: kernel not started")

// KernelManager drives one kernel through its lifecycle. It pairs a
// provisioner with a client chosen from the dispatch registry and keeps
// the two consistent: a kernel is either fully up (launched, resolved,
// connected) or fully down.
type KernelManager struct {
	mu sync.Mutex

	id       string
	prov     provisioner.Provisioner
	registry *registry.Registry
	broker   *pubsub.Broker[KernelEvent]
	tracer   trace.Tracer
	key      []byte

	cli        client.KernelClient
	clientKind string
	running    bool
}

// Option configures a KernelManager.
type Option func(*KernelManager)

// WithBroker attaches a broker for lifecycle events.
func WithBroker(b *pubsub.Broker[KernelEvent]) Option {
	return func(m *KernelManager) { m.broker = b }
}

// WithTracer attaches a tracer for lifecycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *KernelManager) { m.tracer = t }
}

// WithSessionKey overrides the handshake key the client receives. The
// provisioner's own key, if any, is replaced in the copy handed to the
// client; the connection file on disk is untouched.
func WithSessionKey(key []byte) Option {
	return func(m *KernelManager) { m.key = key }
}

// New creates a KernelManager for the given provisioner and registry.
// A fresh kernel ID is assigned; the kernel is not started.
func New(prov provisioner.Provisioner, reg *registry.Registry, opts ...Option) *KernelManager {
	m := &KernelManager{
		id:       uuid.NewString(),
		prov:     prov,
		registry: reg,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the manager's kernel ID.
func (m *KernelManager) ID() string {
	return m.id
}

// ProvisionerKind returns the kind name of the managed provisioner.
func (m *KernelManager) ProvisionerKind() string {
	return m.prov.Kind()
}

// ClientKind returns the client kind selected at the last successful
// start, or "" if the kernel never started.
func (m *KernelManager) ClientKind() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientKind
}

// Client returns the connected client, if the kernel is up.
func (m *KernelManager) Client() (client.KernelClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.cli == nil {
		return nil, false
	}
	return m.cli, true
}

// Running reports whether the kernel is up from both sides: the manager
// completed a start and the provisioner still sees its kernel alive.
func (m *KernelManager) Running() bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return running && m.prov.Running()
}

// Start launches the kernel and connects a client to it.
//
// The sequence is: launch the provisioner, resolve the client kind for
// the provisioner's kind in the registry, build the client, load the
// provisioner's connection info, connect. Any failure after launch
// rolls the launch back so no orphaned kernel is left behind.
func (m *KernelManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyStarted
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanKernelStart,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(tracing.AttrKernelID, m.id),
			attribute.String(tracing.AttrProvisionerKind, m.prov.Kind()),
		))
	defer span.End()

	m.publish(pubsub.CreatedEvent, PhaseStarting, nil)

	if err := m.prov.Launch(ctx); err != nil {
		err = fmt.Errorf("failed to start kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}

	if err := m.connectLocked(ctx, span); err != nil {
		m.rollbackLaunch()
		err = fmt.Errorf("failed to start kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}

	m.running = true
	span.SetAttributes(attribute.String(tracing.AttrClientKind, m.clientKind))
	span.SetStatus(codes.Ok, "")
	m.publish(pubsub.UpdatedEvent, PhaseConnected, nil)

	log.Info(log.CatKernel, "kernel started",
		"id", m.id,
		"provisioner", m.prov.Kind(),
		"client", m.clientKind)
	return nil
}

// Restart tears the kernel down and brings it back up with a fresh
// launch and handshake. The registry is consulted again, so mapping
// changes between start and restart take effect.
func (m *KernelManager) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotStarted
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanKernelRestart,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(tracing.AttrKernelID, m.id),
			attribute.String(tracing.AttrProvisionerKind, m.prov.Kind()),
		))
	defer span.End()

	m.publish(pubsub.UpdatedEvent, PhaseRestarting, nil)

	if m.cli != nil {
		if err := m.cli.Disconnect(ctx); err != nil {
			log.Warn(log.CatKernel, "disconnect during restart failed", "id", m.id, "error", err)
		}
		m.cli = nil
	}
	if err := m.prov.Shutdown(ctx); err != nil {
		err = fmt.Errorf("failed to restart kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}
	m.running = false

	if err := m.prov.Launch(ctx); err != nil {
		err = fmt.Errorf("failed to restart kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}
	if err := m.connectLocked(ctx, span); err != nil {
		m.rollbackLaunch()
		err = fmt.Errorf("failed to restart kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}

	m.running = true
	span.SetAttributes(attribute.String(tracing.AttrClientKind, m.clientKind))
	span.SetStatus(codes.Ok, "")
	m.publish(pubsub.UpdatedEvent, PhaseConnected, nil)

	log.Info(log.CatKernel, "kernel restarted", "id", m.id, "client", m.clientKind)
	return nil
}

// Shutdown disconnects the client and stops the kernel. It is
// idempotent: shutting down a kernel that never started or has already
// stopped is a no-op.
func (m *KernelManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanKernelShutdown,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(tracing.AttrKernelID, m.id)))
	defer span.End()

	if m.cli != nil {
		if err := m.cli.Disconnect(ctx); err != nil {
			log.Warn(log.CatKernel, "disconnect during shutdown failed", "id", m.id, "error", err)
		}
	}

	if err := m.prov.Shutdown(ctx); err != nil {
		// The kernel may still be up; keep state so the caller can retry.
		err = fmt.Errorf("failed to shut down kernel %s: %w", m.id, err)
		m.fail(span, err)
		return err
	}

	m.cli = nil
	m.running = false
	span.SetStatus(codes.Ok, "")
	m.publish(pubsub.DeletedEvent, PhaseStopped, nil)

	log.Info(log.CatKernel, "kernel stopped", "id", m.id)
	return nil
}

// connectLocked runs the resolve/build/load/connect steps against the
// already launched provisioner. Callers hold m.mu, wrap the returned
// error, and roll the launch back on failure. Typed errors (NoMatch,
// MissingField, Connect) stay reachable through the callers' wrapping.
func (m *KernelManager) connectLocked(ctx context.Context, span trace.Span) error {
	provKind, err := kind.Resolve(m.prov.Kind())
	if err != nil {
		return err
	}
	res := m.registry.Explain(provKind)
	if res.Match == registry.MatchNone {
		return &registry.NoMatchError{Kind: provKind.Name}
	}
	span.SetAttributes(
		attribute.String(tracing.AttrMatch, string(res.Match)),
		attribute.String(tracing.AttrMatchVia, res.Via))

	cli, err := client.New(res.Client.Name)
	if err != nil {
		return err
	}

	info, err := m.prov.ConnectionInfo()
	if err != nil {
		return err
	}
	if len(m.key) > 0 {
		info.Set(connection.FieldKey, m.key)
	}

	if err := cli.LoadConnectionInfo(info); err != nil {
		return err
	}

	connectCtx, connectSpan := m.tracer.Start(ctx, tracing.SpanClientConnect,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(tracing.AttrClientKind, res.Client.Name)))
	err = cli.Connect(connectCtx)
	if err != nil {
		connectSpan.RecordError(err)
		connectSpan.SetStatus(codes.Error, err.Error())
		connectSpan.End()
		return err
	}
	connectSpan.SetStatus(codes.Ok, "")
	connectSpan.End()

	m.cli = cli
	m.clientKind = res.Client.Name
	return nil
}

// rollbackLaunch unwinds a launch whose handshake failed so no orphaned
// kernel keeps running.
func (m *KernelManager) rollbackLaunch() {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if err := m.prov.Shutdown(ctx); err != nil {
		log.Warn(log.CatKernel, "rollback shutdown failed", "id", m.id, "error", err)
	}
}

// fail records the error on the span and publishes a failure event.
func (m *KernelManager) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.publish(pubsub.UpdatedEvent, PhaseFailed, err)
}

func (m *KernelManager) publish(typ pubsub.EventType, phase Phase, err error) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(typ, m.id, KernelEvent{
		KernelID:        m.id,
		Phase:           phase,
		ProvisionerKind: m.prov.Kind(),
		ClientKind:      m.clientKind,
		Err:             err,
	})
}
