package executor

import (
	"strings"
	"sync"

	"github.com/avolkov/hostrun/internal/job"
)

// jobState is the bookkeeping for exactly one job. Every RunCommand call
// constructs a fresh value and swaps it in wholesale, so sinks bound to a
// superseded job keep mutating their own state and never touch the
// current one.
type jobState struct {
	mu       sync.Mutex
	handle   job.Handle
	chunks   []string
	exitCode *int
	done     chan struct{}
}

func newJobState() *jobState {
	return &jobState{done: make(chan struct{})}
}

func (s *jobState) setHandle(h job.Handle) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

func (s *jobState) handleRef() job.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *jobState) appendChunk(chunk string) {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()
}

// stdout returns the accumulated chunks joined into one string.
func (s *jobState) stdout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "")
}

// recordExit stores the exit code. It reports false if a code was already
// recorded; the completion sink fires at most once per job, this guards
// against a misbehaving runner.
func (s *jobState) recordExit(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode != nil {
		return false
	}
	s.exitCode = &code
	return true
}

func (s *jobState) exit() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

// release unblocks everyone waiting on this job. Called exactly once, after
// the exit code is recorded and the caller's exit sink has run.
func (s *jobState) release() {
	close(s.done)
}
