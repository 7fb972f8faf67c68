// Package executor owns the per-host job-control state machine: starting a
// command through a transport-specific runner, accumulating its output,
// correlating asynchronous completion with waiting callers, and answering
// status queries mid-flight or after the fact. One Executor tracks at most
// one job at a time; callers are expected to serialize RunCommand per
// instance.
package executor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/avolkov/hostrun/internal/job"
	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/sshx"
)

// ErrNoJob is returned by status and cancel queries before any job has ever
// been started on the executor. Guard with LastJobID() != "" if uncertain.
var ErrNoJob = errors.New("executor: no job has been started")

// JobOptions configures a single RunCommand call.
type JobOptions struct {
	// AdditionalConnOptions is appended to the executor's base connection
	// options for this call only.
	AdditionalConnOptions string
	// OnOutput is invoked once per cleaned output chunk, after the chunk
	// has been appended to the buffer.
	OnOutput func(chunk string)
	// OnExit is invoked once with the exit code, before waiters resume.
	OnExit func(code int)
	// Compression is unused by command execution; it exists for symmetry
	// with the transfer operations.
	Compression *Compression
}

// Executor runs commands on one host/connection pair and keeps the state of
// the current job. Construct once per connection and reuse across
// sequential jobs.
type Executor struct {
	host     string
	connOpts string
	runner   job.Runner
	log      lg.Logger

	mu    sync.Mutex
	state *jobState
}

func New(host, connOpts string, runner job.Runner, log lg.Logger) *Executor {
	if log == nil {
		log = lg.Discard
	}
	return &Executor{
		host:     host,
		connOpts: connOpts,
		runner:   runner,
		log:      log.With(lg.String("host", host)),
	}
}

func (e *Executor) Host() string        { return e.host }
func (e *Executor) ConnOptions() string { return e.connOpts }

// RunCommand starts command on the host and returns a pending result handle
// immediately. Prior job state is irrecoverably discarded before the new
// process starts. A start failure propagates unmasked; the reset still
// stands.
func (e *Executor) RunCommand(ctx context.Context, command string, opts JobOptions) (*Pending, error) {
	st := newJobState()

	e.mu.Lock()
	if prev := e.state; prev != nil {
		if _, done := prev.exit(); !done {
			// Latest wins: the old process keeps running but its sinks
			// only touch the state swapped out here.
			e.log.Warn("starting job while previous is in flight; previous is no longer tracked")
		}
	}
	e.state = st
	e.mu.Unlock()

	onOutput := func(chunks ...string) {
		for _, chunk := range chunks {
			chunk = strings.ReplaceAll(chunk, "\r", "\n")
			st.appendChunk(chunk)
			if opts.OnOutput != nil {
				opts.OnOutput(chunk)
			}
		}
	}
	onExit := func(code int) {
		if !st.recordExit(code) {
			return
		}
		if opts.OnExit != nil {
			opts.OnExit(code)
		}
		st.release()
		e.log.Debug("job finished", lg.Int("exit_code", code))
	}

	spec := job.Spec{
		Command:     command,
		ConnOptions: sshx.MergeOptions(e.connOpts, opts.AdditionalConnOptions),
	}
	handle, err := e.runner.Start(ctx, spec, onOutput, onExit)
	if err != nil {
		return nil, err
	}
	st.setHandle(handle)
	e.log.Info("job started", lg.String("job", handle.ID()), lg.String("command", command))

	return &Pending{exec: e, state: st}, nil
}

// LastJobID returns the current or most recent job id, or "" if no job has
// ever run (or the last start failed).
func (e *Executor) LastJobID() string {
	if h := e.currentHandle(); h != nil {
		return h.ID()
	}
	return ""
}

// LastJobStatus reports the state of the current job: the recorded exit
// code once completion has been observed, otherwise a non-blocking probe of
// the live handle. The exit code is consulted first because a fast job can
// complete before its handle is published.
func (e *Executor) LastJobStatus() (job.Status, error) {
	st, h := e.current()
	if st == nil {
		return job.Status{}, ErrNoJob
	}
	if code, ok := st.exit(); ok {
		return job.Status{Running: false, ExitCode: code}, nil
	}
	if h == nil {
		return job.Status{}, ErrNoJob
	}
	return h.Status(false)
}

// CancelRunningJob requests termination of the current job. The result
// distinguishes a signaled live job from one that had already exited.
// Waiters are resumed by the ordinary completion path, not by this call.
func (e *Executor) CancelRunningJob() (job.TerminateResult, error) {
	st, h := e.current()
	if st == nil {
		return job.TermNotRunning, ErrNoJob
	}
	if _, done := st.exit(); done {
		return job.TermNotRunning, nil
	}
	if h == nil {
		return job.TermNotRunning, ErrNoJob
	}
	return h.Terminate()
}

// JobStdout returns a snapshot of the accumulated output split into logical
// lines: chunks concatenated, outer whitespace trimmed, then split on
// newline. A job with no output yields [""].
func (e *Executor) JobStdout() []string {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()

	var joined string
	if st != nil {
		joined = st.stdout()
	}
	return strings.Split(strings.TrimSpace(joined), "\n")
}

func (e *Executor) current() (*jobState, job.Handle) {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st == nil {
		return nil, nil
	}
	return st, st.handleRef()
}

func (e *Executor) currentHandle() job.Handle {
	_, h := e.current()
	return h
}
