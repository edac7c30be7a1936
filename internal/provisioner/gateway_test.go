package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernelbridge/kernelbridge/internal/connection"
)

// gatewayHarness records the requests a GatewayProvisioner makes
// against a fake Enterprise-Gateway-style server.
type gatewayHarness struct {
	server     *httptest.Server
	startReqs  []*http.Request
	startBody  string
	deleteReqs []string
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	h := &gatewayHarness{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/kernels":
			h.startReqs = append(h.startReqs, r)
			var body struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			h.startBody = body.Name
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"k-123","name":%q}`, body.Name)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/kernels/"):
			h.deleteReqs = append(h.deleteReqs, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

// TestGatewayProvisioner_Launch_StartsKernelViaGateway verifies the
// REST start flow and the composed channels URL.
func TestGatewayProvisioner_Launch_StartsKernelViaGateway(t *testing.T) {
	h := newGatewayHarness(t)
	p := NewGatewayProvisioner(h.server.URL).
		WithToken("secret").
		WithKernelName("python3")
	require.Equal(t, KindGateway, p.Kind())

	require.NoError(t, p.Launch(context.Background()))
	require.True(t, p.Running())
	require.Equal(t, "k-123", p.ID())

	require.Len(t, h.startReqs, 1)
	require.Equal(t, "token secret", h.startReqs[0].Header.Get("Authorization"))
	require.Equal(t, "python3", h.startBody)

	info, err := p.ConnectionInfo()
	require.NoError(t, err)

	wantWS := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/kernels/k-123/channels"
	require.Equal(t, wantWS, info.GetString(connection.FieldWSURL))
	require.Equal(t, "secret", info.GetString(connection.FieldToken))
	require.Equal(t, "python3", info.GetString(connection.FieldKernelName))
}

// TestGatewayProvisioner_Launch_GatewayError_ReturnsLaunchError
// verifies that a gateway refusal surfaces as a LaunchError and leaves
// the provisioner stopped.
func TestGatewayProvisioner_Launch_GatewayError_ReturnsLaunchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewGatewayProvisioner(server.URL)
	err := p.Launch(context.Background())
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, KindGateway, launchErr.Kind)
	require.Contains(t, err.Error(), "status 403")
	require.False(t, p.Running())
}

// TestGatewayProvisioner_Launch_MissingKernelID_ReturnsError verifies
// that a malformed gateway response is rejected.
func TestGatewayProvisioner_Launch_MissingKernelID_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	p := NewGatewayProvisioner(server.URL)
	err := p.Launch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing kernel id")
}

// TestGatewayProvisioner_Shutdown_DeletesKernelResource verifies that
// Shutdown removes the kernel on the gateway.
func TestGatewayProvisioner_Shutdown_DeletesKernelResource(t *testing.T) {
	h := newGatewayHarness(t)
	p := NewGatewayProvisioner(h.server.URL).WithKernelName("python3")
	require.NoError(t, p.Launch(context.Background()))

	require.NoError(t, p.Shutdown(context.Background()))
	require.False(t, p.Running())
	require.Equal(t, []string{"/api/kernels/k-123"}, h.deleteReqs)

	// Second shutdown does not call the gateway again.
	require.NoError(t, p.Shutdown(context.Background()))
	require.Len(t, h.deleteReqs, 1)
}

// TestGatewayProvisioner_Shutdown_KernelAlreadyGone_Succeeds verifies
// that a 404 from the gateway counts as stopped.
func TestGatewayProvisioner_Shutdown_KernelAlreadyGone_Succeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id":"k-9"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewGatewayProvisioner(server.URL)
	require.NoError(t, p.Launch(context.Background()))

	require.NoError(t, p.Shutdown(context.Background()))
	require.False(t, p.Running())
}

// TestGatewayProvisioner_ConnectionInfo_BeforeLaunch_ReturnsError
// verifies the not-launched guard.
func TestGatewayProvisioner_ConnectionInfo_BeforeLaunch_ReturnsError(t *testing.T) {
	p := NewGatewayProvisioner("http://gateway.example.com")

	_, err := p.ConnectionInfo()
	require.ErrorIs(t, err, ErrNotLaunched)
}

// TestChannelsURL_ComposesWebSocketEndpoint verifies HTTP to WebSocket
// scheme mapping and path composition.
func TestChannelsURL_ComposesWebSocketEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		id      string
		want    string
		wantErr bool
	}{
		{
			name: "http base",
			base: "http://gw.example.com:8888",
			id:   "abc",
			want: "ws://gw.example.com:8888/api/kernels/abc/channels",
		},
		{
			name: "https base",
			base: "https://gw.example.com",
			id:   "abc",
			want: "wss://gw.example.com/api/kernels/abc/channels",
		},
		{
			name: "base with path",
			base: "https://gw.example.com/gateway",
			id:   "abc",
			want: "wss://gw.example.com/gateway/api/kernels/abc/channels",
		},
		{
			name:    "unsupported scheme",
			base:    "ftp://gw.example.com",
			id:      "abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := channelsURL(tt.base, tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
