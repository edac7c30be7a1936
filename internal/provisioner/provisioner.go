// Package provisioner launches kernels and produces the connection
// metadata clients need to reach them.
//
// A Provisioner owns the kernel's lifecycle: Launch brings the kernel
// up, ConnectionInfo hands out the handshake metadata, and Shutdown
// tears the kernel down. Each implementation declares a kind name whose
// ancestor chain is defined in the kind catalog, so the dispatch
// registry can match specialized provisioners against mappings
// registered for their ancestors.
package provisioner

import (
	"context"
	"fmt"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
)

// Provisioner kind names. Base is the root of the provisioner
// taxonomy; every shipped provisioner descends from it so a single
// mapping on Base can cover the whole family.
const (
	// KindBase is the root provisioner kind. It has no ancestors.
	KindBase = "kernelbridge.provisioners.Base"

	// KindRemote marks provisioners whose kernels run off-host. It is
	// an intermediate kind: nothing instantiates it directly, but
	// mappings registered for it cover every remote descendant.
	KindRemote = "kernelbridge.provisioners.Remote"

	// KindLocal identifies LocalProvisioner (subprocess kernels).
	KindLocal = "kernelbridge.provisioners.Local"

	// KindStatic identifies StaticProvisioner (externally managed kernels).
	KindStatic = "kernelbridge.provisioners.Static"

	// KindGateway identifies GatewayProvisioner (kernels behind an
	// Enterprise-Gateway-style HTTP/WebSocket service).
	KindGateway = "kernelbridge.provisioners.Gateway"
)

func init() {
	kind.MustDefine(kind.Descriptor{Name: KindBase})
	kind.MustDefine(kind.Descriptor{Name: KindRemote, Ancestors: []string{KindBase}})
	kind.MustDefine(kind.Descriptor{Name: KindLocal, Ancestors: []string{KindBase}})
	kind.MustDefine(kind.Descriptor{Name: KindStatic, Ancestors: []string{KindBase}})
	kind.MustDefine(kind.Descriptor{Name: KindGateway, Ancestors: []string{KindRemote, KindBase}})
}

// ErrNotLaunched is returned when connection info or shutdown is
// requested before a successful Launch.
var ErrNotLaunched = fmt.Errorf("provisioner: kernel not launched")

// ErrAlreadyLaunched is returned by Launch when the kernel is already up.
var ErrAlreadyLaunched = fmt.Errorf("provisioner: kernel already launched")

// LaunchError wraps a failure to bring a kernel up, carrying the
// provisioner kind for error reports.
type LaunchError struct {
	Kind string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch kernel via %s: %v", e.Kind, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Provisioner manages a single kernel's lifecycle.
//
// Implementations are safe for concurrent use. The expected call
// sequence is Launch, then any number of ConnectionInfo/Running calls,
// then Shutdown. Launch on a running kernel returns
// ErrAlreadyLaunched; ConnectionInfo before Launch returns
// ErrNotLaunched.
type Provisioner interface {
	// Kind returns the canonical dotted kind name of this provisioner.
	// Lookup in the dispatch registry starts from this name.
	Kind() string

	// Launch brings the kernel up and prepares its connection info.
	// The context bounds the launch itself, not the kernel's lifetime.
	Launch(ctx context.Context) error

	// ConnectionInfo returns a copy of the handshake metadata for the
	// running kernel. Callers may mutate the returned Info freely;
	// repeated calls return equivalent, independent copies.
	ConnectionInfo() (*connection.Info, error)

	// Running reports whether the kernel is currently up.
	Running() bool

	// Shutdown stops the kernel and releases its resources. It is
	// idempotent: shutting down a kernel that never launched or has
	// already stopped is a no-op.
	Shutdown(ctx context.Context) error
}
