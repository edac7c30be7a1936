package client

import (
	"context"
	"fmt"
	"slices"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/kind"
)

// Canonical kind names of the shipped client implementations.
const (
	KindDirect   = "kernelbridge.clients.Direct"
	KindGateway  = "kernelbridge.clients.Gateway"
	KindLoopback = "kernelbridge.clients.Loopback"
)

// KernelClient attaches to a running kernel backend. Implementations are
// handed the connection info their provisioner published, validate it, and
// establish whatever channel access they need. The wire-level messaging
// protocol stays outside this contract.
type KernelClient interface {
	// Kind returns the descriptor identifying this client implementation.
	Kind() kind.Descriptor

	// LoadConnectionInfo validates and applies the handshake fields.
	// All required fields are checked up front: on failure nothing is
	// applied and the returned error names every missing field.
	// Unrecognized fields are ignored. Loading again while connected is
	// rejected with ErrAlreadyConnected; before Connect, a second load
	// replaces the previous state wholesale.
	LoadConnectionInfo(info *connection.Info) error

	// Connect establishes the client's channel access to the backend.
	// Requires a successful LoadConnectionInfo first. Failures surface
	// as a ConnectError.
	Connect(ctx context.Context) error

	// Disconnect tears down channel access. Safe to call when not
	// connected.
	Disconnect(ctx context.Context) error

	// Connected reports whether the client currently holds a connection.
	Connected() bool
}

// ErrUnknownClientKind is returned when an unregistered client kind is
// requested.
var ErrUnknownClientKind = fmt.Errorf("unknown client kind")

// ErrAlreadyConnected is returned when connection info is loaded into a
// client that is still connected from a previous load.
var ErrAlreadyConnected = fmt.Errorf("connection info already loaded while connected")

// ErrNotLoaded is returned when Connect is called before any connection
// info has been loaded.
var ErrNotLoaded = fmt.Errorf("no connection info loaded")

// ConnectError reports a failed connection attempt with enough context to
// diagnose it: the client kind, the endpoint probed, and the cause.
type ConnectError struct {
	Kind     string
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: failed to connect to %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// clientRegistry holds registered client factories keyed by canonical kind
// name. Use Register to add new client kinds.
var clientRegistry = make(map[string]func() KernelClient)

// Register registers a client factory under a kind name (either accepted
// syntax). This should be called in init() functions of implementation
// packages; it panics on an unparseable name.
func Register(kindName string, factory func() KernelClient) {
	canon, err := kind.ParseName(kindName)
	if err != nil {
		panic(err)
	}
	clientRegistry[canon] = factory
}

// New creates a KernelClient for the given kind name.
// Returns ErrUnknownClientKind if the kind is not registered.
func New(kindName string) (KernelClient, error) {
	canon, err := kind.ParseName(kindName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClientKind, kindName)
	}
	factory, ok := clientRegistry[canon]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClientKind, canon)
	}
	return factory(), nil
}

// Registered returns the sorted canonical names of all registered client
// kinds.
func Registered() []string {
	names := make([]string, 0, len(clientRegistry))
	for name := range clientRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered returns true if the given client kind has been registered.
func IsRegistered(kindName string) bool {
	canon, err := kind.ParseName(kindName)
	if err != nil {
		return false
	}
	_, ok := clientRegistry[canon]
	return ok
}
