package executor

import "context"

// Pending is the result handle returned by RunCommand. A caller that wants
// blocking semantics waits on it; a fire-and-poll caller discards it and
// observes the outcome later through LastJobStatus/JobStdout.
type Pending struct {
	exec  *Executor
	state *jobState
}

// Done is closed once the job's completion sink has run.
func (p *Pending) Done() <-chan struct{} { return p.state.done }

// ExitCode returns the recorded exit code, or false while the job is still
// in flight.
func (p *Pending) ExitCode() (int, bool) { return p.state.exit() }

// Wait blocks until the job completes or ctx is cancelled, and returns the
// exit code. Cancelling the wait does not cancel the job.
func (p *Pending) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.state.done:
		code, _ := p.state.exit()
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Executor returns the owning executor, for chaining after Wait.
func (p *Pending) Executor() *Executor { return p.exec }
