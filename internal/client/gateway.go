package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/log"
)

func init() {
	kind.MustDefine(kind.Descriptor{Name: KindGateway})
	Register(KindGateway, func() KernelClient {
		return NewGatewayClient()
	})
}

// GatewayClient attaches to a kernel running behind an HTTP kernel gateway.
// The handshake carries a websocket channels URL; Connect probes the
// kernel's REST resource derived from it so a dead or unauthorized kernel
// fails fast instead of at first message.
type GatewayClient struct {
	mu   sync.Mutex
	http *retryablehttp.Client

	loaded    bool
	connected bool

	wsURL      string
	token      string
	kernelName string
}

// NewGatewayClient creates a GatewayClient with bounded retries.
func NewGatewayClient() *GatewayClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil // probe failures surface as errors, not retry chatter
	rc.HTTPClient.Timeout = 10 * time.Second
	return &GatewayClient{http: rc}
}

// Kind returns the Gateway client descriptor.
func (c *GatewayClient) Kind() kind.Descriptor {
	return kind.Descriptor{Name: KindGateway}
}

// LoadConnectionInfo validates and applies the gateway handshake. ws_url is
// required and must be a ws:// or wss:// URL; token and kernel_name are
// optional.
func (c *GatewayClient) LoadConnectionInfo(info *connection.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if err := info.Require(connection.FieldWSURL); err != nil {
		return err
	}

	wsURL := info.GetString(connection.FieldWSURL)
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid ws_url %q: %w", wsURL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("invalid ws_url %q: scheme must be ws or wss", wsURL)
	}

	c.wsURL = wsURL
	c.token = info.GetString(connection.FieldToken)
	c.kernelName = info.GetString(connection.FieldKernelName)
	c.loaded = true
	return nil
}

// Connect probes the kernel's REST resource on the gateway.
func (c *GatewayClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	probeURL := probeURLFromWS(c.wsURL)
	token := c.token
	httpClient := c.http
	c.mu.Unlock()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return &ConnectError{Kind: KindGateway, Endpoint: probeURL, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &ConnectError{Kind: KindGateway, Endpoint: probeURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ConnectError{
			Kind:     KindGateway,
			Endpoint: probeURL,
			Err:      fmt.Errorf("gateway returned status %d", resp.StatusCode),
		}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	log.Debug(log.CatClient, "gateway client connected", "url", probeURL)
	return nil
}

// Disconnect drops the connection state. Safe to call when not connected.
func (c *GatewayClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// Connected reports whether Connect has succeeded since the last
// Disconnect.
func (c *GatewayClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// probeURLFromWS derives the kernel's REST resource URL from its channels
// URL: the scheme flips to http(s) and a trailing /channels segment is
// dropped, leaving the kernel model endpoint.
func probeURLFromWS(wsURL string) string {
	probe := wsURL
	switch {
	case strings.HasPrefix(probe, "wss://"):
		probe = "https://" + strings.TrimPrefix(probe, "wss://")
	case strings.HasPrefix(probe, "ws://"):
		probe = "http://" + strings.TrimPrefix(probe, "ws://")
	}
	return strings.TrimSuffix(probe, "/channels")
}

// Ensure GatewayClient implements KernelClient at compile time.
var _ KernelClient = (*GatewayClient)(nil)
