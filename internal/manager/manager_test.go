package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kernelbridge/kernelbridge/internal/client"
	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/provisioner"
	"github.com/kernelbridge/kernelbridge/internal/pubsub"
	"github.com/kernelbridge/kernelbridge/internal/registry"
)

// === Test Fixtures ===

// loopbackInfo carries the one field the Loopback client requires.
func loopbackInfo() *connection.Info {
	return connection.New().Set(client.FieldEndpoint, "inproc://kernel-under-test")
}

func mustKind(t *testing.T, name string) kind.Descriptor {
	t.Helper()
	d, err := kind.Resolve(name)
	require.NoError(t, err)
	return d
}

// loopbackRegistry maps the Static provisioner kind straight to the
// Loopback client.
func loopbackRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.Register(mustKind(t, provisioner.KindStatic), mustKind(t, client.KindLoopback))
	return reg
}

// fakeProvisioner is a provisioner double with injectable failures and
// call counters.
type fakeProvisioner struct {
	mu          sync.Mutex
	kindName    string
	info        *connection.Info
	launchErr   error
	shutdownErr error
	running     bool
	launches    int
	shutdowns   int
}

func newFakeProvisioner(info *connection.Info) *fakeProvisioner {
	return &fakeProvisioner{kindName: provisioner.KindStatic, info: info}
}

func (p *fakeProvisioner) withKind(name string) *fakeProvisioner {
	p.kindName = name
	return p
}

func (p *fakeProvisioner) failShutdown(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownErr = err
}

func (p *fakeProvisioner) counts() (launches, shutdowns int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launches, p.shutdowns
}

func (p *fakeProvisioner) Kind() string { return p.kindName }

func (p *fakeProvisioner) Launch(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launches++
	if p.launchErr != nil {
		return p.launchErr
	}
	p.running = true
	return nil
}

func (p *fakeProvisioner) ConnectionInfo() (*connection.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil, provisioner.ErrNotLaunched
	}
	return p.info.Clone(), nil
}

func (p *fakeProvisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakeProvisioner) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns++
	if p.shutdownErr != nil {
		return p.shutdownErr
	}
	p.running = false
	return nil
}

var _ provisioner.Provisioner = (*fakeProvisioner)(nil)

// stubClient records lifecycle calls so handshake flows can be
// asserted. Each test registers its own instance under a unique kind
// name; the factory hands back the shared instance for inspection.
type stubClient struct {
	mu          sync.Mutex
	kindName    string
	connectErr  error
	connected   bool
	loads       int
	connects    int
	disconnects int
	lastInfo    *connection.Info
}

func registerStub(t *testing.T, name string) *stubClient {
	t.Helper()
	stub := &stubClient{kindName: name}
	client.Register(name, func() client.KernelClient { return stub })
	return stub
}

func (c *stubClient) Kind() kind.Descriptor {
	return kind.Descriptor{Name: c.kindName}
}

func (c *stubClient) LoadConnectionInfo(info *connection.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return client.ErrAlreadyConnected
	}
	c.loads++
	c.lastInfo = info
	return nil
}

func (c *stubClient) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connects++
	c.connected = true
	return nil
}

func (c *stubClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
	return nil
}

func (c *stubClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ client.KernelClient = (*stubClient)(nil)

// collectEvents drains n envelopes from a broker subscription.
func collectEvents(t *testing.T, ch <-chan pubsub.Event[KernelEvent], n int) []pubsub.Event[KernelEvent] {
	t.Helper()
	events := make([]pubsub.Event[KernelEvent], 0, n)
	for len(events) < n {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(events)+1, n)
		}
	}
	return events
}

// === Start ===

func TestKernelManager_Start_LaunchesAndConnects(t *testing.T) {
	prov := provisioner.NewStaticProvisioner(loopbackInfo())
	km := New(prov, loopbackRegistry(t))

	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.True(t, km.Running())
	require.NotEmpty(t, km.ID())
	require.Equal(t, provisioner.KindStatic, km.ProvisionerKind())
	require.Equal(t, client.KindLoopback, km.ClientKind())

	cli, ok := km.Client()
	require.True(t, ok)
	require.True(t, cli.Connected())
}

func TestKernelManager_Start_Twice(t *testing.T) {
	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), loopbackRegistry(t))

	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.ErrorIs(t, km.Start(context.Background()), ErrAlreadyStarted)
}

func TestKernelManager_Start_AncestorMappingCoversDescendants(t *testing.T) {
	// Only the Base kind is mapped; the Static provisioner descends from
	// it and must dispatch through the chain.
	reg := registry.New()
	reg.Register(mustKind(t, provisioner.KindBase), mustKind(t, client.KindLoopback))

	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), reg)
	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.Equal(t, client.KindLoopback, km.ClientKind())
}

func TestKernelManager_Start_FallbackWhenNothingMatches(t *testing.T) {
	reg := registry.New(registry.WithFallback(mustKind(t, client.KindLoopback)))

	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), reg)
	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.Equal(t, client.KindLoopback, km.ClientKind())
}

func TestKernelManager_Start_NoMappingRollsBackLaunch(t *testing.T) {
	prov := newFakeProvisioner(loopbackInfo())
	km := New(prov, registry.New())

	err := km.Start(context.Background())
	require.Error(t, err)

	var noMatch *registry.NoMatchError
	require.ErrorAs(t, err, &noMatch)
	require.Equal(t, provisioner.KindStatic, noMatch.Kind)

	launches, shutdowns := prov.counts()
	require.Equal(t, 1, launches)
	require.Equal(t, 1, shutdowns)
	require.False(t, prov.Running())
	require.False(t, km.Running())
}

func TestKernelManager_Start_MissingFieldRollsBackLaunch(t *testing.T) {
	// Info without the endpoint field fails the loopback handshake.
	prov := newFakeProvisioner(connection.New())
	km := New(prov, loopbackRegistry(t))

	err := km.Start(context.Background())
	require.Error(t, err)

	var missing *connection.MissingFieldError
	require.ErrorAs(t, err, &missing)
	require.Contains(t, missing.Missing, client.FieldEndpoint)
	require.False(t, prov.Running())
}

func TestKernelManager_Start_ConnectFailureRollsBackLaunch(t *testing.T) {
	stub := registerStub(t, "kernelbridge.clients.StubConnectFail")
	stub.connectErr = fmt.Errorf("refused")

	prov := newFakeProvisioner(loopbackInfo())
	reg := registry.New()
	reg.Register(mustKind(t, provisioner.KindStatic), stub.Kind())

	km := New(prov, reg)
	err := km.Start(context.Background())
	require.ErrorContains(t, err, "refused")
	require.False(t, prov.Running())
	require.False(t, km.Running())
}

func TestKernelManager_Start_SessionKeyOverridesProvisionerKey(t *testing.T) {
	stub := registerStub(t, "kernelbridge.clients.StubKeyCapture")

	info := loopbackInfo().Set(connection.FieldKey, []byte("provisioner-key"))
	prov := provisioner.NewStaticProvisioner(info)
	reg := registry.New()
	reg.Register(mustKind(t, provisioner.KindStatic), stub.Kind())

	km := New(prov, reg, WithSessionKey([]byte("session-key")))
	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.Equal(t, []byte("session-key"), stub.lastInfo.GetBytes(connection.FieldKey))

	// The override lands on the client's copy only.
	provInfo, err := prov.ConnectionInfo()
	require.NoError(t, err)
	require.Equal(t, []byte("provisioner-key"), provInfo.GetBytes(connection.FieldKey))
}

// === Lifecycle Events ===

func TestKernelManager_Start_PublishesLifecycleEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewBroker[KernelEvent]()
	sub := broker.Subscribe(ctx)

	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), loopbackRegistry(t),
		WithBroker(broker))
	require.NoError(t, km.Start(ctx))

	events := collectEvents(t, sub, 2)
	require.Equal(t, pubsub.CreatedEvent, events[0].Type)
	require.Equal(t, km.ID(), events[0].Source)
	require.Equal(t, PhaseStarting, events[0].Payload.Phase)
	require.Equal(t, provisioner.KindStatic, events[0].Payload.ProvisionerKind)

	require.Equal(t, pubsub.UpdatedEvent, events[1].Type)
	require.Equal(t, PhaseConnected, events[1].Payload.Phase)
	require.Equal(t, client.KindLoopback, events[1].Payload.ClientKind)

	require.NoError(t, km.Shutdown(ctx))
	events = collectEvents(t, sub, 1)
	require.Equal(t, pubsub.DeletedEvent, events[0].Type)
	require.Equal(t, PhaseStopped, events[0].Payload.Phase)
}

func TestKernelManager_Start_FailurePublishesFailedPhase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewBroker[KernelEvent]()
	sub := broker.Subscribe(ctx)

	km := New(newFakeProvisioner(loopbackInfo()), registry.New(), WithBroker(broker))
	require.Error(t, km.Start(ctx))

	events := collectEvents(t, sub, 2)
	require.Equal(t, PhaseStarting, events[0].Payload.Phase)
	require.Equal(t, PhaseFailed, events[1].Payload.Phase)
	require.ErrorContains(t, events[1].Payload.Err, "no client mapping")
}

// === Restart ===

func TestKernelManager_Restart_BeforeStart(t *testing.T) {
	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), loopbackRegistry(t))
	require.ErrorIs(t, km.Restart(context.Background()), ErrNotStarted)
}

func TestKernelManager_Restart_RelaunchesProvisioner(t *testing.T) {
	prov := newFakeProvisioner(loopbackInfo())
	km := New(prov, loopbackRegistry(t))

	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })

	require.NoError(t, km.Restart(context.Background()))
	require.True(t, km.Running())

	launches, shutdowns := prov.counts()
	require.Equal(t, 2, launches)
	require.Equal(t, 1, shutdowns)
}

func TestKernelManager_Restart_ReconsultsRegistry(t *testing.T) {
	stub := registerStub(t, "kernelbridge.clients.StubRestartTarget")

	reg := loopbackRegistry(t)
	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), reg)

	require.NoError(t, km.Start(context.Background()))
	t.Cleanup(func() { _ = km.Shutdown(context.Background()) })
	require.Equal(t, client.KindLoopback, km.ClientKind())

	// Remap the provisioner kind between start and restart; the restart
	// must pick up the new client.
	reg.Register(mustKind(t, provisioner.KindStatic), stub.Kind())
	require.NoError(t, km.Restart(context.Background()))

	require.Equal(t, "kernelbridge.clients.StubRestartTarget", km.ClientKind())
	require.True(t, stub.Connected())
}

// === Shutdown ===

func TestKernelManager_Shutdown_Idempotent(t *testing.T) {
	km := New(provisioner.NewStaticProvisioner(loopbackInfo()), loopbackRegistry(t))

	// Never started: nothing to do.
	require.NoError(t, km.Shutdown(context.Background()))

	require.NoError(t, km.Start(context.Background()))
	require.NoError(t, km.Shutdown(context.Background()))
	require.False(t, km.Running())

	// Already stopped: still a no-op.
	require.NoError(t, km.Shutdown(context.Background()))
}

func TestKernelManager_Shutdown_DisconnectsClient(t *testing.T) {
	stub := registerStub(t, "kernelbridge.clients.StubDisconnect")

	prov := newFakeProvisioner(loopbackInfo())
	reg := registry.New()
	reg.Register(mustKind(t, provisioner.KindStatic), stub.Kind())

	km := New(prov, reg)
	require.NoError(t, km.Start(context.Background()))
	require.NoError(t, km.Shutdown(context.Background()))

	require.False(t, stub.Connected())
	require.Equal(t, 1, stub.disconnects)
	require.False(t, prov.Running())

	_, ok := km.Client()
	require.False(t, ok)
}

func TestKernelManager_Shutdown_ProvisionerFailureKeepsState(t *testing.T) {
	prov := newFakeProvisioner(loopbackInfo())
	km := New(prov, loopbackRegistry(t))

	require.NoError(t, km.Start(context.Background()))

	prov.failShutdown(fmt.Errorf("kernel stuck"))
	err := km.Shutdown(context.Background())
	require.ErrorContains(t, err, "failed to shut down kernel")

	// The kernel may still be up; a retry must be possible.
	require.True(t, km.Running())
	prov.failShutdown(nil)
	require.NoError(t, km.Shutdown(context.Background()))
	require.False(t, km.Running())
}

// === Running ===

func TestKernelManager_Running_ReflectsProvisionerState(t *testing.T) {
	prov := provisioner.NewStaticProvisioner(loopbackInfo())
	km := New(prov, loopbackRegistry(t))

	require.False(t, km.Running())
	require.NoError(t, km.Start(context.Background()))
	require.True(t, km.Running())

	// Kernel dies underneath the manager.
	require.NoError(t, prov.Shutdown(context.Background()))
	require.False(t, km.Running())
}
