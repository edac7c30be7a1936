package provisioner

import (
	"context"
	"fmt"
	"sync"

	"github.com/kernelbridge/kernelbridge/internal/connection"
)

// StaticProvisioner represents a kernel that is already running and
// managed outside this process. Launch only validates and publishes the
// supplied connection info; Shutdown detaches without touching the
// kernel.
type StaticProvisioner struct {
	mu      sync.Mutex
	info    *connection.Info
	running bool
}

// NewStaticProvisioner wraps externally supplied connection info.
func NewStaticProvisioner(info *connection.Info) *StaticProvisioner {
	return &StaticProvisioner{info: info}
}

// NewStaticProvisionerFromFile reads a connection file written by
// another kernel manager and wraps it.
func NewStaticProvisionerFromFile(path string) (*StaticProvisioner, error) {
	info, err := connection.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStaticProvisioner(info), nil
}

// Kind implements Provisioner.
func (p *StaticProvisioner) Kind() string {
	return KindStatic
}

// Launch implements Provisioner. No process is started; the provided
// connection info becomes visible to ConnectionInfo.
func (p *StaticProvisioner) Launch(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyLaunched
	}
	if p.info == nil {
		return &LaunchError{Kind: KindStatic, Err: fmt.Errorf("connection info is required")}
	}
	p.running = true
	return nil
}

// ConnectionInfo implements Provisioner.
func (p *StaticProvisioner) ConnectionInfo() (*connection.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil, ErrNotLaunched
	}
	return p.info.Clone(), nil
}

// Running implements Provisioner.
func (p *StaticProvisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown implements Provisioner. The external kernel keeps running;
// only this provisioner's view of it is cleared.
func (p *StaticProvisioner) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

var _ Provisioner = (*StaticProvisioner)(nil)
