package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/avolkov/hostrun/internal/config"
	"github.com/avolkov/hostrun/internal/executor"
	"github.com/avolkov/hostrun/internal/job"
	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/sshexec"
)

// jobExecutor is the capability set the handlers need from an executor,
// satisfied by both the local executor and the SSH specialization.
type jobExecutor interface {
	RunCommand(ctx context.Context, command string, opts executor.JobOptions) (*executor.Pending, error)
	LastJobID() string
	LastJobStatus() (job.Status, error)
	CancelRunningJob() (job.TerminateResult, error)
	JobStdout() []string
	Host() string
}

// hostRunner pairs one configured host with its lazily-built executor.
// The mutex serializes job starts per host: an executor tracks at most one
// job, overlapping starts would silently untrack the previous one.
type hostRunner struct {
	host config.Host

	mu     sync.Mutex
	exec   jobExecutor
	closer io.Closer
}

type hostSet struct {
	log lg.Logger

	mu      sync.Mutex
	inv     *config.Inventory
	runners map[string]*hostRunner
}

func newHostSet(inv *config.Inventory, log lg.Logger) *hostSet {
	return &hostSet{
		log:     log,
		inv:     inv,
		runners: make(map[string]*hostRunner),
	}
}

// get returns the runner for a configured host, connecting on first use.
func (s *hostSet) get(ctx context.Context, name string) (*hostRunner, error) {
	s.mu.Lock()
	r, ok := s.runners[name]
	if !ok {
		host, found := s.inv.Lookup(name)
		if !found {
			s.mu.Unlock()
			return nil, fmt.Errorf("host %q is not in the inventory", name)
		}
		r = &hostRunner{host: *host}
		s.runners[name] = r
	}
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec != nil {
		return r, nil
	}

	switch r.host.Transport {
	case "local":
		runner := job.NewLocalRunner(s.log)
		r.exec = executor.New(r.host.Name, r.host.ConnOptions, runner, s.log)
	case "ssh":
		ex, err := sshexec.Connect(ctx, r.host.Addr, r.host.ConnOptions, s.log)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", r.host.Name, err)
		}
		r.exec = ex
		r.closer = ex
	default:
		return nil, fmt.Errorf("host %q has unknown transport %q", name, r.host.Transport)
	}
	return r, nil
}

// setInventory swaps in a freshly loaded inventory. Existing runners keep
// their connections; new names resolve against the new host list.
func (s *hostSet) setInventory(inv *config.Inventory) {
	s.mu.Lock()
	s.inv = inv
	s.mu.Unlock()
}

// knows reports whether the inventory lists the given host.
func (s *hostSet) knows(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.inv.Lookup(name)
	return found
}

// lookup returns an already-connected runner without dialing. exec is
// published under r.mu by get, so the check takes the same lock.
func (s *hostSet) lookup(name string) (*hostRunner, bool) {
	s.mu.Lock()
	r, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	connected := r.exec != nil
	r.mu.Unlock()
	if !connected {
		return nil, false
	}
	return r, true
}

func (s *hostSet) closeAll() {
	s.mu.Lock()
	runners := make([]*hostRunner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	for _, r := range runners {
		r.mu.Lock()
		closer := r.closer
		r.mu.Unlock()
		if closer != nil {
			if err := closer.Close(); err != nil {
				s.log.Warn("closing connection failed",
					lg.String("host", r.host.Name), lg.Err(err))
			}
		}
	}
}
