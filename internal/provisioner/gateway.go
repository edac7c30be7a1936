package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/log"
)

// GatewayProvisioner starts kernels through an Enterprise-Gateway-style
// REST API. Launch POSTs to /api/kernels on the gateway, records the
// kernel ID from the response, and publishes connection info whose
// ws_url points at the kernel's channels endpoint. Shutdown DELETEs the
// kernel resource.
type GatewayProvisioner struct {
	mu sync.Mutex

	baseURL    string
	token      string
	kernelName string
	http       *retryablehttp.Client

	id      string
	info    *connection.Info
	running bool
}

// NewGatewayProvisioner creates a GatewayProvisioner for the gateway at
// baseURL (an http:// or https:// URL without the /api/kernels path).
func NewGatewayProvisioner(baseURL string) *GatewayProvisioner {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second

	return &GatewayProvisioner{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

// WithToken sets the gateway auth token. It is sent on every request
// and embedded in the published connection info for the client.
func (p *GatewayProvisioner) WithToken(token string) *GatewayProvisioner {
	p.token = token
	return p
}

// WithKernelName sets the kernelspec name requested from the gateway.
func (p *GatewayProvisioner) WithKernelName(name string) *GatewayProvisioner {
	p.kernelName = name
	return p
}

// WithHTTPClient replaces the retrying HTTP client, primarily for tests.
func (p *GatewayProvisioner) WithHTTPClient(c *retryablehttp.Client) *GatewayProvisioner {
	p.http = c
	return p
}

// Kind implements Provisioner.
func (p *GatewayProvisioner) Kind() string {
	return KindGateway
}

// ID returns the gateway-assigned kernel ID, or "" before Launch.
func (p *GatewayProvisioner) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// gatewayKernel is the relevant slice of the gateway's kernel resource.
type gatewayKernel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Launch implements Provisioner. It asks the gateway to start a kernel
// and builds connection info from the returned kernel ID.
func (p *GatewayProvisioner) Launch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyLaunched
	}
	if p.baseURL == "" {
		return fmt.Errorf("gateway provisioner: base URL is required")
	}

	var body []byte
	if p.kernelName != "" {
		var err error
		body, err = json.Marshal(map[string]string{"name": p.kernelName})
		if err != nil {
			return &LaunchError{Kind: KindGateway, Err: err}
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/kernels", body)
	if err != nil {
		return &LaunchError{Kind: KindGateway, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.http.Do(req)
	if err != nil {
		return &LaunchError{Kind: KindGateway, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &LaunchError{Kind: KindGateway, Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}

	var k gatewayKernel
	if err := json.NewDecoder(resp.Body).Decode(&k); err != nil {
		return &LaunchError{Kind: KindGateway, Err: fmt.Errorf("failed to decode kernel resource: %w", err)}
	}
	if k.ID == "" {
		return &LaunchError{Kind: KindGateway, Err: fmt.Errorf("gateway response missing kernel id")}
	}

	wsURL, err := channelsURL(p.baseURL, k.ID)
	if err != nil {
		return &LaunchError{Kind: KindGateway, Err: err}
	}

	info := connection.New().Set(connection.FieldWSURL, wsURL)
	if p.token != "" {
		info.Set(connection.FieldToken, p.token)
	}
	if k.Name != "" {
		info.Set(connection.FieldKernelName, k.Name)
	} else if p.kernelName != "" {
		info.Set(connection.FieldKernelName, p.kernelName)
	}

	p.id = k.ID
	p.info = info
	p.running = true

	log.Debug(log.CatProvisioner, "kernel started via gateway",
		"kind", KindGateway,
		"id", k.ID,
		"wsURL", wsURL)

	return nil
}

// ConnectionInfo implements Provisioner.
func (p *GatewayProvisioner) ConnectionInfo() (*connection.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return nil, ErrNotLaunched
	}
	return p.info.Clone(), nil
}

// Running implements Provisioner.
func (p *GatewayProvisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown implements Provisioner. It deletes the kernel resource on
// the gateway. A kernel the gateway no longer knows about counts as
// stopped.
func (p *GatewayProvisioner) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	id := p.id
	p.mu.Unlock()

	req, err := retryablehttp.NewRequestWithContext(ctx, "DELETE", p.baseURL+"/api/kernels/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to stop kernel %s: %w", id, err)
	}
	p.authorize(req)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to stop kernel %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != 404 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("failed to stop kernel %s: gateway returned status %d", id, resp.StatusCode)
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	log.Debug(log.CatProvisioner, "kernel stopped via gateway", "kind", KindGateway, "id", id)
	return nil
}

func (p *GatewayProvisioner) authorize(req *retryablehttp.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "token "+p.token)
	}
}

// channelsURL composes the WebSocket channels endpoint for a kernel ID
// from the gateway's HTTP base URL.
func channelsURL(baseURL, kernelID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse gateway URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("failed to parse gateway URL: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/kernels/" + kernelID + "/channels"
	return u.String(), nil
}

var _ Provisioner = (*GatewayProvisioner)(nil)
