package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kernelbridge/kernelbridge/internal/connection"
	"github.com/kernelbridge/kernelbridge/internal/log"
)

// ConnectionFileToken is the placeholder in kernel argv that Launch
// replaces with the path of the written connection file.
const ConnectionFileToken = "{connection_file}"

// defaultGracePeriod is how long Shutdown waits after SIGTERM before
// the kernel process is killed.
const defaultGracePeriod = 5 * time.Second

// CommandFactoryFunc creates an exec.Cmd for testing purposes.
// It receives the context, executable path, and arguments. The returned
// command must be built with exec.CommandContext so cancellation works.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// LocalProvisioner launches a kernel as a subprocess on this host.
//
// Launch reserves five distinct loopback ports, writes a connection
// file carrying them plus a fresh HMAC key, substitutes the file path
// into the kernel argv, and starts the process. Shutdown sends SIGTERM
// and escalates to a kill after the grace period.
type LocalProvisioner struct {
	mu sync.Mutex

	argv           []string
	workDir        string
	env            []string
	connectionDir  string
	ip             string
	kernelName     string
	gracePeriod    time.Duration
	commandFactory CommandFactoryFunc

	id       string
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	waitDone chan struct{}
	waitErr  error
	info     *connection.Info
	connFile string
	running  bool
}

// NewLocalProvisioner creates a LocalProvisioner for the given kernel
// argv. Configure it with the With* methods before calling Launch.
func NewLocalProvisioner(argv []string) *LocalProvisioner {
	return &LocalProvisioner{
		argv:          argv,
		connectionDir: os.TempDir(),
		ip:            "127.0.0.1",
		gracePeriod:   defaultGracePeriod,
	}
}

// WithWorkDir sets the working directory for the kernel process.
func (p *LocalProvisioner) WithWorkDir(dir string) *LocalProvisioner {
	p.workDir = dir
	return p
}

// WithEnv sets additional environment variables to append to
// os.Environ(). Variables are in the format "KEY=VALUE".
func (p *LocalProvisioner) WithEnv(env []string) *LocalProvisioner {
	p.env = env
	return p
}

// WithConnectionDir sets the directory the connection file is written
// to. Defaults to os.TempDir().
func (p *LocalProvisioner) WithConnectionDir(dir string) *LocalProvisioner {
	p.connectionDir = dir
	return p
}

// WithIP sets the interface the kernel binds to. Defaults to 127.0.0.1.
func (p *LocalProvisioner) WithIP(ip string) *LocalProvisioner {
	p.ip = ip
	return p
}

// WithKernelName records the kernelspec name in the connection info.
func (p *LocalProvisioner) WithKernelName(name string) *LocalProvisioner {
	p.kernelName = name
	return p
}

// WithGracePeriod sets how long Shutdown waits after SIGTERM before
// killing the kernel process.
func (p *LocalProvisioner) WithGracePeriod(d time.Duration) *LocalProvisioner {
	p.gracePeriod = d
	return p
}

// WithCommandFactory sets a custom command factory for testing.
// This allows unit tests to mock exec.Command without spawning real
// kernels.
func (p *LocalProvisioner) WithCommandFactory(fn CommandFactoryFunc) *LocalProvisioner {
	p.commandFactory = fn
	return p
}

// Kind implements Provisioner.
func (p *LocalProvisioner) Kind() string {
	return KindLocal
}

// ID returns the kernel ID assigned at Launch, or "" before Launch.
func (p *LocalProvisioner) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// ConnectionFile returns the path of the written connection file, or
// "" before Launch.
func (p *LocalProvisioner) ConnectionFile() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connFile
}

// Launch starts the kernel subprocess.
//
// Launch performs the following steps:
//  1. Reserves five distinct listener ports on the configured IP
//  2. Builds the connection info (ports, transport, fresh HMAC key)
//  3. Writes the connection file under the connection directory
//  4. Substitutes {connection_file} in the argv and starts the process
//
// On error, all created resources are cleaned up.
func (p *LocalProvisioner) Launch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyLaunched
	}
	if len(p.argv) == 0 {
		return fmt.Errorf("local provisioner: kernel argv is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ports, err := reservePorts(p.ip, 5)
	if err != nil {
		return &LaunchError{Kind: KindLocal, Err: err}
	}

	id := uuid.NewString()
	info := connection.New().
		Set(connection.FieldTransport, "tcp").
		Set(connection.FieldIP, p.ip).
		Set(connection.FieldShellPort, ports[0]).
		Set(connection.FieldIOPubPort, ports[1]).
		Set(connection.FieldStdinPort, ports[2]).
		Set(connection.FieldControlPort, ports[3]).
		Set(connection.FieldHBPort, ports[4]).
		Set(connection.FieldSignatureScheme, "hmac-sha256").
		Set(connection.FieldKey, uuid.NewString())
	if p.kernelName != "" {
		info.Set(connection.FieldKernelName, p.kernelName)
	}

	connFile := filepath.Join(p.connectionDir, "kernel-"+id+".json")
	if err := connection.WriteFile(connFile, info); err != nil {
		return &LaunchError{Kind: KindLocal, Err: err}
	}

	// The kernel outlives the launch call, so the process gets its own
	// cancel-only context owned by this provisioner.
	procCtx, cancel := context.WithCancel(context.Background())

	cleanup := func() {
		cancel()
		_ = os.Remove(connFile)
	}

	argv := substituteConnectionFile(p.argv, connFile)
	var cmd *exec.Cmd
	if p.commandFactory != nil {
		cmd = p.commandFactory(procCtx, argv[0], argv[1:]...)
	} else {
		// #nosec G204 -- argv comes from the kernelspec configuration, not user input
		cmd = exec.CommandContext(procCtx, argv[0], argv[1:]...)
	}
	cmd.Dir = p.workDir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	// Ask the kernel to exit cleanly first; the process is killed once
	// the grace period elapses without an exit.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = p.gracePeriod

	log.Debug(log.CatProvisioner, "launching kernel",
		"kind", KindLocal,
		"id", id,
		"argv0", argv[0],
		"connFile", connFile)

	if err := cmd.Start(); err != nil {
		cleanup()
		return &LaunchError{Kind: KindLocal, Err: fmt.Errorf("failed to start kernel process: %w", err)}
	}

	waitDone := make(chan struct{})
	log.SafeGo("kernel-reaper-"+id, func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(waitDone)
	})

	p.id = id
	p.cmd = cmd
	p.cancel = cancel
	p.waitDone = waitDone
	p.waitErr = nil
	p.info = info
	p.connFile = connFile
	p.running = true

	log.Debug(log.CatProvisioner, "kernel started",
		"kind", KindLocal,
		"id", id,
		"pid", cmd.Process.Pid)

	return nil
}

// ConnectionInfo implements Provisioner. The returned Info is a copy;
// mutating it does not affect the provisioner's own state.
func (p *LocalProvisioner) ConnectionInfo() (*connection.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return nil, ErrNotLaunched
	}
	return p.info.Clone(), nil
}

// Running implements Provisioner.
func (p *LocalProvisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	select {
	case <-p.waitDone:
		p.running = false
		return false
	default:
		return true
	}
}

// Shutdown implements Provisioner. It signals the kernel to terminate,
// waits for the process to exit (bounded by ctx), and removes the
// connection file.
func (p *LocalProvisioner) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	id := p.id
	cancel := p.cancel
	waitDone := p.waitDone
	connFile := p.connFile
	p.mu.Unlock()

	cancel()

	select {
	case <-waitDone:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop kernel %s: %w", id, ctx.Err())
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	if err := os.Remove(connFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn(log.CatProvisioner, "failed to remove connection file",
			"id", id, "path", connFile, "error", err)
	}

	log.Debug(log.CatProvisioner, "kernel stopped", "kind", KindLocal, "id", id)
	return nil
}

// substituteConnectionFile replaces the {connection_file} token in each
// argv element with the written connection file path.
func substituteConnectionFile(argv []string, connFile string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, ConnectionFileToken, connFile)
	}
	return out
}

// reservePorts allocates n distinct TCP ports on ip by opening
// listeners on port 0 and closing them once all are bound. Holding
// every listener open until the last one is bound keeps the kernel's
// five channels from colliding.
func reservePorts(ip string, n int) ([]int, error) {
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	ports := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
		if err != nil {
			return nil, fmt.Errorf("failed to reserve kernel port: %w", err)
		}
		listeners = append(listeners, l)
		addr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return nil, fmt.Errorf("failed to reserve kernel port: unexpected address %q", l.Addr())
		}
		ports = append(ports, addr.Port)
	}
	return ports, nil
}

var _ Provisioner = (*LocalProvisioner)(nil)
