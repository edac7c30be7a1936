// Package client provides the kernel client abstraction.
//
// A kernel client attaches to a running kernel backend using the connection
// info its provisioner published. This package defines the backend-agnostic
// contract plus a factory registry keyed by client kind name, so the kernel
// manager can instantiate whichever implementation the dispatch registry
// selected without linking against it directly.
//
// Implementations self-register from init():
//   - DirectClient attaches to locally provisioned kernels over their
//     socket endpoints.
//   - GatewayClient attaches to kernels behind an HTTP kernel gateway.
//   - LoopbackClient is an in-process implementation for tests and wiring
//     checks.
//
// Example usage:
//
//	c, err := client.New(client.KindDirect)
//	if err != nil {
//	    return err
//	}
//	if err := c.LoadConnectionInfo(info); err != nil {
//	    return err
//	}
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Disconnect(ctx)
package client
