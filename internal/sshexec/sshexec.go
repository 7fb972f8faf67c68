// Package sshexec is the SSH specialization of the executor: commands run
// through the SSH job runner and the TransferCapable capability is backed
// by the SCP sink protocol for uploads and remote cat for downloads, with
// optional gzip compression of the payload stream.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/ssh"

	"github.com/avolkov/hostrun/internal/executor"
	"github.com/avolkov/hostrun/internal/job"
	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/sshx"
)

// SSHExecutor embeds the core job-control executor and adds file transfer.
type SSHExecutor struct {
	*executor.Executor
	client *sshx.Client
	log    lg.Logger
}

var _ executor.TransferCapable = (*SSHExecutor)(nil)

// Connect dials the host described by connOpts and builds an executor bound
// to that connection.
func Connect(ctx context.Context, host, connOpts string, log lg.Logger) (*SSHExecutor, error) {
	if log == nil {
		log = lg.Discard
	}
	client, err := sshx.Dial(ctx, host, sshx.ParseOptions(connOpts), log)
	if err != nil {
		return nil, err
	}
	runner := job.NewSSHRunner(client, log)
	return &SSHExecutor{
		Executor: executor.New(host, connOpts, runner, log),
		client:   client,
		log:      log.With(lg.String("host", host)),
	}, nil
}

// Close tears down the underlying connection. Executor state stays
// queryable but no further jobs or transfers can start.
func (e *SSHExecutor) Close() error { return e.client.Close() }

// Upload copies a local file to remoteDst. With compression enabled the
// payload is gzipped locally and inflated on the remote side; otherwise the
// SCP sink protocol is spoken directly.
func (e *SSHExecutor) Upload(ctx context.Context, localSrc, remoteDst string, opts executor.TransferOptions) error {
	src, err := os.Open(localSrc)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer src.Close()

	if err := e.runRemote(ctx, "mkdir -p "+quote(filepath.Dir(remoteDst)), nil, nil); err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}

	if opts.Compression != nil && opts.Compression.Enabled {
		return e.uploadCompressed(ctx, src, remoteDst, opts.Compression.ExtraArgs)
	}

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}
	payload := func(stdin io.WriteCloser) {
		defer stdin.Close()
		fmt.Fprintf(stdin, "C0644 %d %s\n", info.Size(), filepath.Base(remoteDst))
		_, _ = io.Copy(stdin, src)
		fmt.Fprint(stdin, "\x00")
	}
	if err := e.runRemote(ctx, "scp -t "+quote(remoteDst), payload, nil); err != nil {
		return fmt.Errorf("scp upload: %w", err)
	}
	e.log.Info("uploaded file", lg.String("src", localSrc), lg.String("dst", remoteDst))
	return nil
}

func (e *SSHExecutor) uploadCompressed(ctx context.Context, src io.Reader, remoteDst string, extraArgs []string) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.Copy(zw, src); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}

	cmd := strings.Join(append([]string{"gzip", "-d"}, extraArgs...), " ") + " > " + quote(remoteDst)
	payload := func(stdin io.WriteCloser) {
		defer stdin.Close()
		_, _ = io.Copy(stdin, &buf)
	}
	if err := e.runRemote(ctx, cmd, payload, nil); err != nil {
		return fmt.Errorf("compressed upload: %w", err)
	}
	e.log.Info("uploaded file (compressed)", lg.String("dst", remoteDst))
	return nil
}

// Download copies remoteSrc into localDst. With compression enabled the
// remote side gzips the stream and it is inflated locally.
func (e *SSHExecutor) Download(ctx context.Context, remoteSrc, localDst string, opts executor.TransferOptions) error {
	if err := os.MkdirAll(filepath.Dir(localDst), 0755); err != nil {
		return fmt.Errorf("create local directory: %w", err)
	}

	compressed := opts.Compression != nil && opts.Compression.Enabled
	cmd := "cat " + quote(remoteSrc)
	if compressed {
		cmd = strings.Join(append([]string{"gzip", "-c"}, opts.Compression.ExtraArgs...), " ") + " " + quote(remoteSrc)
	}

	var buf bytes.Buffer
	if err := e.runRemote(ctx, cmd, nil, &buf); err != nil {
		return fmt.Errorf("read remote file: %w", err)
	}

	var content io.Reader = &buf
	if compressed {
		zr, err := gzip.NewReader(&buf)
		if err != nil {
			return fmt.Errorf("inflate payload: %w", err)
		}
		defer zr.Close()
		content = zr
	}

	dst, err := os.OpenFile(localDst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, content); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	e.log.Info("downloaded file", lg.String("src", remoteSrc), lg.String("dst", localDst))
	return nil
}

// runRemote runs one command in a fresh session. payload, when set, feeds
// the session's stdin; stdout, when set, captures its output. A nonzero
// exit status is an error here: transfers either succeed or fail.
func (e *SSHExecutor) runRemote(ctx context.Context, cmd string, payload func(io.WriteCloser), stdout io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, err := e.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if stdout != nil {
		sess.Stdout = stdout
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	if payload != nil {
		stdin, err := sess.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		go payload(stdin)
	}

	if err := sess.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			return fmt.Errorf("remote command failed (exit %d): %s", exitErr.ExitStatus(), msg)
		}
		return fmt.Errorf("run remote command: %w", err)
	}
	return nil
}

// quote single-quotes s for the remote shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
