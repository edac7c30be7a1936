package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/log"
)

func init() {
	kind.MustDefine(kind.Descriptor{Name: KindDirect})
	Register(KindDirect, func() KernelClient {
		return NewDirectClient()
	})
}

// directRequiredFields are the handshake fields a locally provisioned
// kernel must publish: the five channel ports plus address and transport.
var directRequiredFields = []string{
	connection.FieldShellPort,
	connection.FieldIOPubPort,
	connection.FieldStdinPort,
	connection.FieldControlPort,
	connection.FieldHBPort,
	connection.FieldIP,
	connection.FieldTransport,
}

// DialFunc opens a probe connection to an endpoint. Tests substitute it to
// avoid real sockets.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DirectClient attaches to a locally provisioned kernel over its socket
// endpoints. Connect verifies reachability by dialing the shell endpoint;
// channel protocol handling is left to the transport layer above.
type DirectClient struct {
	mu   sync.Mutex
	dial DialFunc

	loaded    bool
	connected bool

	ip          string
	transport   string
	shellPort   int
	iopubPort   int
	stdinPort   int
	controlPort int
	hbPort      int
	scheme      string
	key         []byte
}

// NewDirectClient creates a DirectClient with a default network dialer.
func NewDirectClient() *DirectClient {
	d := &net.Dialer{Timeout: 5 * time.Second}
	return &DirectClient{dial: d.DialContext}
}

// WithDial replaces the probe dialer. Returns the client for chaining.
func (c *DirectClient) WithDial(dial DialFunc) *DirectClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = dial
	return c
}

// Kind returns the Direct client descriptor.
func (c *DirectClient) Kind() kind.Descriptor {
	return kind.Descriptor{Name: KindDirect}
}

// LoadConnectionInfo validates and applies the socket handshake fields.
func (c *DirectClient) LoadConnectionInfo(info *connection.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if err := info.Require(directRequiredFields...); err != nil {
		return err
	}

	c.ip = info.GetString(connection.FieldIP)
	c.transport = info.GetString(connection.FieldTransport)
	c.shellPort = info.GetInt(connection.FieldShellPort)
	c.iopubPort = info.GetInt(connection.FieldIOPubPort)
	c.stdinPort = info.GetInt(connection.FieldStdinPort)
	c.controlPort = info.GetInt(connection.FieldControlPort)
	c.hbPort = info.GetInt(connection.FieldHBPort)
	c.scheme = info.GetString(connection.FieldSignatureScheme)
	if c.scheme == "" {
		c.scheme = "hmac-sha256"
	}
	c.key = info.GetBytes(connection.FieldKey)
	c.loaded = true
	return nil
}

// Connect dials the shell endpoint to verify the backend is reachable.
func (c *DirectClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	network, endpoint := c.probeTarget()
	dial := c.dial
	c.mu.Unlock()

	conn, err := dial(ctx, network, endpoint)
	if err != nil {
		return &ConnectError{Kind: KindDirect, Endpoint: endpoint, Err: err}
	}
	_ = conn.Close()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	log.Debug(log.CatClient, "direct client connected",
		"endpoint", endpoint, "transport", c.transport)
	return nil
}

// Disconnect drops the connection state. Safe to call when not connected;
// afterwards a fresh LoadConnectionInfo is accepted again.
func (c *DirectClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// Connected reports whether Connect has succeeded since the last
// Disconnect.
func (c *DirectClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// probeTarget maps the loaded transport to a dialable network/address pair.
// tcp endpoints are host:port; ipc endpoints follow the "path-port" unix
// socket convention.
func (c *DirectClient) probeTarget() (network, addr string) {
	if c.transport == "ipc" {
		return "unix", c.ip + "-" + strconv.Itoa(c.shellPort)
	}
	return "tcp", net.JoinHostPort(c.ip, strconv.Itoa(c.shellPort))
}

// Ensure DirectClient implements KernelClient at compile time.
var _ KernelClient = (*DirectClient)(nil)
