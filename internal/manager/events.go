package manager

// Phase describes where a kernel is in its lifecycle.
type Phase string

const (
	// PhaseStarting is published before the provisioner launches.
	PhaseStarting Phase = "starting"
	// PhaseConnected is published once the client handshake succeeds.
	PhaseConnected Phase = "connected"
	// PhaseRestarting is published when a restart begins.
	PhaseRestarting Phase = "restarting"
	// PhaseStopped is published after a clean shutdown.
	PhaseStopped Phase = "stopped"
	// PhaseFailed is published when a start or restart cannot complete.
	PhaseFailed Phase = "failed"
)

// KernelEvent is the lifecycle notification published on the manager's
// broker. The event envelope's Source carries the kernel ID so shared
// subscribers can split streams without inspecting the payload.
type KernelEvent struct {
	KernelID        string
	Phase           Phase
	ProvisionerKind string
	ClientKind      string
	Err             error
}
