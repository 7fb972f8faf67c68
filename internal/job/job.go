// Package job defines the process-execution primitive consumed by the
// executor layer: starting an external command with output and exit sinks,
// probing its status, and requesting termination. Implementations exist for
// local processes and for commands run over an established SSH connection.
package job

import "context"

// OutputFunc receives zero or more raw output chunks as they arrive.
// All chunks for a job are delivered before its ExitFunc fires.
type OutputFunc func(chunks ...string)

// ExitFunc receives the process exit code. It fires at most once per job.
type ExitFunc func(code int)

// Spec describes the command to start.
type Spec struct {
	// Command is passed to the target shell verbatim.
	Command string
	// ConnOptions is an opaque key=value list interpreted by the transport.
	// Unknown keys are ignored.
	ConnOptions string
	// PTY requests a pseudo-terminal. Command execution through the
	// executor never sets it; interactive consumers may.
	PTY bool
}

// Runner starts external processes and couples their lifecycle to sinks.
type Runner interface {
	// Start launches the command and returns a handle for it. Output and
	// exit sinks are invoked from the runner's own goroutines; onExit is
	// called only after all output has been delivered. Start failures are
	// returned directly and no sink fires.
	Start(ctx context.Context, spec Spec, onOutput OutputFunc, onExit ExitFunc) (Handle, error)
}

// Status reports the observable state of a started job.
type Status struct {
	Running  bool
	ExitCode int // valid only when Running is false
}

// TerminateResult distinguishes cancelling a live job from a stale one.
type TerminateResult int

const (
	// TermSignaled means a running process was sent a kill signal.
	TermSignaled TerminateResult = iota
	// TermNotRunning means the process had already exited or the handle
	// is no longer valid.
	TermNotRunning
)

// Handle identifies one started job.
type Handle interface {
	// ID returns an opaque identifier for the job, stable for its lifetime.
	ID() string
	// Status probes the job. With block set it waits for completion first;
	// otherwise it reports the current state without waiting.
	Status(block bool) (Status, error)
	// Terminate requests termination of the job. Best effort: the exit
	// sink still fires through the ordinary completion path.
	Terminate() (TerminateResult, error)
}
