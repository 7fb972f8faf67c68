package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/avolkov/hostrun/internal/lg"
)

const defaultShell = "/bin/sh"

// LocalRunner starts commands as local child processes through a shell.
// Stdout and stderr share one pipe so chunks arrive interleaved, the way a
// terminal would see them. No pseudo-terminal is allocated unless asked for.
type LocalRunner struct {
	// Shell overrides the interpreter; defaults to /bin/sh.
	Shell string
	log   lg.Logger
}

func NewLocalRunner(log lg.Logger) *LocalRunner {
	if log == nil {
		log = lg.Discard
	}
	return &LocalRunner{log: log}
}

func (r *LocalRunner) Start(ctx context.Context, spec Spec, onOutput OutputFunc, onExit ExitFunc) (Handle, error) {
	shell := r.Shell
	if shell == "" {
		shell = defaultShell
	}

	cmd := exec.Command(shell, "-c", spec.Command)
	// New process group, so Terminate can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %q: %w", spec.Command, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	h := &localHandle{
		id:   uuid.NewString(),
		cmd:  cmd,
		done: make(chan struct{}),
	}
	r.log.Debug("local job started", lg.String("job", h.id), lg.Int("pid", cmd.Process.Pid))

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.Terminate()
			case <-h.done:
			}
		}()
	}
	go h.pump(pr, onOutput, onExit)
	return h, nil
}

type localHandle struct {
	id   string
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// pump drains the output pipe to EOF, reaps the process, records the exit
// code and only then fires the exit sink. EOF on the pipe precedes Wait
// returning, which keeps the output-before-exit ordering contract.
func (h *localHandle) pump(pr *os.File, onOutput OutputFunc, onExit ExitFunc) {
	buf := make([]byte, 4096)
	for {
		n, err := pr.Read(buf)
		if n > 0 && onOutput != nil {
			onOutput(string(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	pr.Close()

	code := 0
	if err := h.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)

	if onExit != nil {
		onExit(code)
	}
}

func (h *localHandle) ID() string { return h.id }

func (h *localHandle) Status(block bool) (Status, error) {
	if block {
		<-h.done
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return Status{Running: true}, nil
	}
	return Status{Running: false, ExitCode: h.exitCode}, nil
}

func (h *localHandle) Terminate() (TerminateResult, error) {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited {
		return TermNotRunning, nil
	}
	// Negative pid signals the whole process group.
	if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return TermNotRunning, nil
		}
		return TermNotRunning, fmt.Errorf("kill job %s: %w", h.id, err)
	}
	return TermSignaled, nil
}
