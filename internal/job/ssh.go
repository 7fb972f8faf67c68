package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/sshx"
)

// SSHRunner runs commands over an established SSH connection, one session
// per job. It satisfies the same Runner contract as LocalRunner, so the
// executor layer does not care which transport it drives.
type SSHRunner struct {
	client *sshx.Client
	log    lg.Logger
}

func NewSSHRunner(client *sshx.Client, log lg.Logger) *SSHRunner {
	if log == nil {
		log = lg.Discard
	}
	return &SSHRunner{client: client, log: log}
}

func (r *SSHRunner) Start(ctx context.Context, spec Spec, onOutput OutputFunc, onExit ExitFunc) (Handle, error) {
	sess, err := r.client.NewSession()
	if err != nil {
		return nil, err
	}

	opts := sshx.ParseOptions(spec.ConnOptions)
	if spec.PTY || opts.PTY {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := sess.RequestPty("xterm", 40, 80, modes); err != nil {
			sess.Close()
			return nil, fmt.Errorf("request pty: %w", err)
		}
	}
	for k, v := range opts.Env {
		// Servers commonly restrict AcceptEnv; a refusal is not fatal.
		if err := sess.Setenv(k, v); err != nil {
			r.log.Debug("setenv rejected", lg.String("key", k), lg.Err(err))
		}
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := sess.Start(spec.Command); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start %q: %w", spec.Command, err)
	}

	h := &sshHandle{
		id:   uuid.NewString(),
		sess: sess,
		done: make(chan struct{}),
	}
	r.log.Debug("ssh job started",
		lg.String("job", h.id), lg.String("remote", r.client.RemoteAddr()))

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.Terminate()
			case <-h.done:
			}
		}()
	}
	go h.run(stdout, stderr, onOutput, onExit)
	return h, nil
}

type sshHandle struct {
	id   string
	sess *ssh.Session
	done chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// run drains both pipes, waits for the remote command and fires the exit
// sink last. Draining completes before Wait returns, preserving the
// output-before-exit ordering.
func (h *sshHandle) run(stdout, stderr io.Reader, onOutput OutputFunc, onExit ExitFunc) {
	var g errgroup.Group
	g.Go(func() error { return drain(stdout, onOutput) })
	g.Go(func() error { return drain(stderr, onOutput) })
	_ = g.Wait()

	code := 0
	if err := h.sess.Wait(); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitStatus()
		} else {
			// Killed sessions report ExitMissingError; treat any
			// abnormal end as a nonzero code rather than an error.
			code = -1
		}
	}
	h.sess.Close()

	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)

	if onExit != nil {
		onExit(code)
	}
}

func drain(r io.Reader, onOutput OutputFunc) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && onOutput != nil {
			onOutput(string(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (h *sshHandle) ID() string { return h.id }

func (h *sshHandle) Status(block bool) (Status, error) {
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

func (h *sshHandle) Terminate() (TerminateResult, error) {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited {
		return TermNotRunning, nil
	}
	// Not every server honors the signal request; closing the session
	// tears the channel down either way.
	_ = h.sess.Signal(ssh.SIGKILL)
	if err := h.sess.Close(); err != nil && !errors.Is(err, io.EOF) {
		return TermSignaled, fmt.Errorf("close session: %w", err)
	}
	return TermSignaled, nil
}
