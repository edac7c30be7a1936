package testutil

import (
	"time"

	"github.com/kernelbridge/kernelbridge/internal/connection"
)

// WithLifecycleSessions adds one session per lifecycle state, oldest
// first so listing order is deterministic:
//
//	lifecycle-starting   (starting,  4h ago)
//	lifecycle-connected  (connected, 3h ago)
//	lifecycle-stopped    (stopped,   2h ago)
//	lifecycle-failed     (failed,    1h ago)
func (b *Builder) WithLifecycleSessions() *Builder {
	now := time.Now()

	return b.
		WithSession("lifecycle-starting",
			State("starting"), CreatedAt(now.Add(-4*time.Hour))).
		WithSession("lifecycle-connected",
			State("connected"), CreatedAt(now.Add(-3*time.Hour)),
			ProvisionerKind("kernelbridge.provisioners.Local"),
			ClientKind("kernelbridge.clients.Direct"),
			ConnectionFile("/tmp/kernel-lifecycle-connected.json")).
		WithSession("lifecycle-stopped",
			State("stopped"), CreatedAt(now.Add(-2*time.Hour))).
		WithSession("lifecycle-failed",
			State("failed"), CreatedAt(now.Add(-1*time.Hour)))
}

// WithStandardSessions adds a mixed dataset of named sessions across
// provisioner and client kinds.
func (b *Builder) WithStandardSessions() *Builder {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	return b.
		WithSession("sess-1",
			Name("data-cleaning"), Path("/work/notebooks/cleaning.ipynb"),
			State("connected"),
			ProvisionerKind("kernelbridge.provisioners.Local"),
			ClientKind("kernelbridge.clients.Direct"),
			ConnectionFile("/tmp/kernel-sess-1.json"),
			CreatedAt(yesterday), UpdatedAt(now)).
		WithSession("sess-2",
			Name("model-training"), Path("/work/notebooks/train.ipynb"),
			State("connected"),
			ProvisionerKind("kernelbridge.provisioners.Gateway"),
			ClientKind("kernelbridge.clients.Gateway"),
			CreatedAt(yesterday), UpdatedAt(yesterday)).
		WithSession("sess-3",
			Name("scratch"), State("stopped"),
			ProvisionerKind("kernelbridge.provisioners.Local"),
			ClientKind("kernelbridge.clients.Direct"),
			CreatedAt(lastWeek), UpdatedAt(yesterday)).
		WithSession("sess-4",
			Name("broken-env"), State("failed"),
			ProvisionerKind("kernelbridge.provisioners.Local"),
			CreatedAt(lastWeek), UpdatedAt(lastWeek))
}

// ZMQConnectionInfo returns a connection payload with the full set of
// ZeroMQ handshake fields a local provisioner publishes.
func ZMQConnectionInfo() *connection.Info {
	return connection.New().
		Set(connection.FieldShellPort, 53001).
		Set(connection.FieldIOPubPort, 53002).
		Set(connection.FieldStdinPort, 53003).
		Set(connection.FieldControlPort, 53004).
		Set(connection.FieldHBPort, 53005).
		Set(connection.FieldIP, "127.0.0.1").
		Set(connection.FieldTransport, "tcp").
		Set(connection.FieldSignatureScheme, "hmac-sha256").
		Set(connection.FieldKey, "a0436f6c-1916-498b-8eb9-e81ab9368e84").
		Set(connection.FieldKernelName, "python3")
}

// GatewayConnectionInfo returns a connection payload for a websocket
// gateway backend.
func GatewayConnectionInfo() *connection.Info {
	return connection.New().
		Set(connection.FieldWSURL, "wss://gateway.example.com/api/kernels/abc123/channels").
		Set(connection.FieldToken, "s3cr3t-token").
		Set(connection.FieldKernelName, "python3")
}
