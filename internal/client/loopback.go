package client

import (
	"context"
	"sync"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
)

func init() {
	kind.MustDefine(kind.Descriptor{Name: KindLoopback})
	Register(KindLoopback, func() KernelClient {
		return NewLoopbackClient()
	})
}

// FieldEndpoint is the one field a loopback handshake requires.
const FieldEndpoint = "endpoint"

// LoopbackClient is an in-process client with no real backend. It follows
// the full load/connect contract, which makes it the standard double for
// wiring checks and manager tests.
type LoopbackClient struct {
	mu        sync.Mutex
	loaded    bool
	connected bool
	endpoint  string
}

// NewLoopbackClient creates a LoopbackClient.
func NewLoopbackClient() *LoopbackClient {
	return &LoopbackClient{}
}

// Kind returns the Loopback client descriptor.
func (c *LoopbackClient) Kind() kind.Descriptor {
	return kind.Descriptor{Name: KindLoopback}
}

// LoadConnectionInfo requires only the endpoint field.
func (c *LoopbackClient) LoadConnectionInfo(info *connection.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if err := info.Require(FieldEndpoint); err != nil {
		return err
	}
	c.endpoint = info.GetString(FieldEndpoint)
	c.loaded = true
	return nil
}

// Connect succeeds whenever connection info has been loaded.
func (c *LoopbackClient) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	c.connected = true
	return nil
}

// Disconnect drops the connection state.
func (c *LoopbackClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// Connected reports whether Connect has succeeded since the last
// Disconnect.
func (c *LoopbackClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Endpoint returns the loaded endpoint value.
func (c *LoopbackClient) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Ensure LoopbackClient implements KernelClient at compile time.
var _ KernelClient = (*LoopbackClient)(nil)
