package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/hostrun/internal/executor"
	"github.com/avolkov/hostrun/internal/job"
	"github.com/avolkov/hostrun/internal/lg"
)

// fakeHandle lets tests flip a job between running and exited.
type fakeHandle struct {
	id string

	mu         sync.Mutex
	exited     bool
	exitCode   int
	terminated bool
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Status(block bool) (job.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return job.Status{Running: true}, nil
	}
	return job.Status{Running: false, ExitCode: h.exitCode}, nil
}

func (h *fakeHandle) Terminate() (job.TerminateResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return job.TermNotRunning, nil
	}
	h.terminated = true
	return job.TermSignaled, nil
}

// startedJob captures one Start call so the test can drive the sinks.
type startedJob struct {
	spec     job.Spec
	onOutput job.OutputFunc
	onExit   job.ExitFunc
	handle   *fakeHandle
}

func (j *startedJob) emit(chunks ...string) { j.onOutput(chunks...) }

func (j *startedJob) exit(code int) {
	j.handle.mu.Lock()
	j.handle.exited = true
	j.handle.exitCode = code
	j.handle.mu.Unlock()
	j.onExit(code)
}

type fakeRunner struct {
	mu       sync.Mutex
	started  []*startedJob
	startErr error
}

func (r *fakeRunner) Start(_ context.Context, spec job.Spec, onOutput job.OutputFunc, onExit job.ExitFunc) (job.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	j := &startedJob{
		spec:     spec,
		onOutput: onOutput,
		onExit:   onExit,
		handle:   &fakeHandle{id: string(rune('a' + len(r.started)))},
	}
	r.started = append(r.started, j)
	return j.handle, nil
}

func (r *fakeRunner) last() *startedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[len(r.started)-1]
}

func newTestExecutor(t *testing.T) (*executor.Executor, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	return executor.New("testhost", "user=root", runner, lg.Discard), runner
}

func TestLastJobStatusReflectsLatestJobOnly(t *testing.T) {
	ex, runner := newTestExecutor(t)

	codes := []int{0, 3, 42}
	for _, want := range codes {
		_, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{})
		require.NoError(t, err)
		runner.last().exit(want)

		status, err := ex.LastJobStatus()
		require.NoError(t, err)
		assert.False(t, status.Running)
		assert.Equal(t, want, status.ExitCode)
	}
}

func TestJobStdoutNormalizesAndSplits(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "echo ab", executor.JobOptions{})
	require.NoError(t, err)
	runner.last().emit("a\r", "b\n")
	runner.last().exit(0)

	assert.Equal(t, []string{"a", "b"}, ex.JobStdout())
}

func TestJobStdoutNoOutput(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{})
	require.NoError(t, err)
	runner.last().exit(0)

	assert.Equal(t, []string{""}, ex.JobStdout())
}

func TestJobStdoutIsASnapshotMidFlight(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "tail -f log", executor.JobOptions{})
	require.NoError(t, err)
	runner.last().emit("first\n")
	assert.Equal(t, []string{"first"}, ex.JobStdout())

	runner.last().emit("second\n")
	assert.Equal(t, []string{"first", "second"}, ex.JobStdout())
}

func TestQueriesBeforeAnyJob(t *testing.T) {
	ex, _ := newTestExecutor(t)

	assert.Empty(t, ex.LastJobID())

	_, err := ex.LastJobStatus()
	assert.ErrorIs(t, err, executor.ErrNoJob)

	_, err = ex.CancelRunningJob()
	assert.ErrorIs(t, err, executor.ErrNoJob)
}

func TestStatusWhileRunningProbesHandle(t *testing.T) {
	ex, _ := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "sleep 60", executor.JobOptions{})
	require.NoError(t, err)

	status, err := ex.LastJobStatus()
	require.NoError(t, err)
	assert.True(t, status.Running)
}

func TestCancelDistinguishesLiveAndExited(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "sleep 60", executor.JobOptions{})
	require.NoError(t, err)

	result, err := ex.CancelRunningJob()
	require.NoError(t, err)
	assert.Equal(t, job.TermSignaled, result)

	runner.last().exit(137)

	result, err = ex.CancelRunningJob()
	require.NoError(t, err)
	assert.Equal(t, job.TermNotRunning, result)
}

func TestCancelDoesNotResumeWaiters(t *testing.T) {
	ex, runner := newTestExecutor(t)

	pending, err := ex.RunCommand(context.Background(), "sleep 60", executor.JobOptions{})
	require.NoError(t, err)

	_, err = ex.CancelRunningJob()
	require.NoError(t, err)

	select {
	case <-pending.Done():
		t.Fatal("cancel must not resume waiters; only completion does")
	default:
	}

	runner.last().exit(137)
	<-pending.Done()
	code, ok := pending.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 137, code)
}

func TestOverlappingStartDiscardsPreviousJob(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "job A", executor.JobOptions{})
	require.NoError(t, err)
	jobA := runner.last()
	jobA.emit("from A\n")

	// Start B while A has not completed.
	_, err = ex.RunCommand(context.Background(), "job B", executor.JobOptions{})
	require.NoError(t, err)
	jobB := runner.last()
	jobB.emit("from B\n")
	jobB.exit(0)

	// A's late completion must have no bookkeeping effect.
	jobA.emit("late A output\n")
	jobA.exit(5)

	assert.Equal(t, []string{"from B"}, ex.JobStdout())
	status, err := ex.LastJobStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, status.ExitCode)
	assert.Equal(t, jobB.handle.ID(), ex.LastJobID())
}

func TestPendingWait(t *testing.T) {
	ex, runner := newTestExecutor(t)

	pending, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{})
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		runner.last().exit(2)
	}()

	code, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestPendingWaitHonorsContext(t *testing.T) {
	ex, _ := newTestExecutor(t)

	pending, err := ex.RunCommand(context.Background(), "sleep 60", executor.JobOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSinksAreForwardedInOrder(t *testing.T) {
	ex, runner := newTestExecutor(t)

	var mu sync.Mutex
	var chunks []string
	exitSeen := make(chan int, 1)

	pending, err := ex.RunCommand(context.Background(), "echo hi", executor.JobOptions{
		OnOutput: func(chunk string) {
			mu.Lock()
			chunks = append(chunks, chunk)
			mu.Unlock()
		},
		OnExit: func(code int) { exitSeen <- code },
	})
	require.NoError(t, err)

	runner.last().emit("line\r")
	runner.last().exit(0)

	_, err = pending.Wait(context.Background())
	require.NoError(t, err)

	// OnExit runs before waiters resume.
	select {
	case code := <-exitSeen:
		assert.Equal(t, 0, code)
	default:
		t.Fatal("OnExit did not fire before Wait returned")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"line\n"}, chunks, "carriage returns are normalized before forwarding")
}

func TestConnOptionsMergedPerCall(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{
		AdditionalConnOptions: "timeout=5s",
	})
	require.NoError(t, err)

	assert.Equal(t, "user=root timeout=5s", runner.last().spec.ConnOptions)
	assert.False(t, runner.last().spec.PTY, "command execution never allocates a pty")
}

func TestStartFailurePropagatesAndResetStands(t *testing.T) {
	ex, runner := newTestExecutor(t)

	_, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{})
	require.NoError(t, err)
	runner.last().emit("old\n")
	runner.last().exit(0)

	boom := errors.New("no such binary")
	runner.mu.Lock()
	runner.startErr = boom
	runner.mu.Unlock()

	_, err = ex.RunCommand(context.Background(), "missing", executor.JobOptions{})
	assert.ErrorIs(t, err, boom)

	// The reset happened before the failed start; prior state is gone.
	assert.Empty(t, ex.LastJobID())
	assert.Equal(t, []string{""}, ex.JobStdout())
}

// instantExitRunner completes the job inside Start, before the caller has
// seen a handle.
type instantExitRunner struct {
	code int
}

func (r *instantExitRunner) Start(_ context.Context, _ job.Spec, onOutput job.OutputFunc, onExit job.ExitFunc) (job.Handle, error) {
	onOutput("done\n")
	onExit(r.code)
	return &fakeHandle{id: "instant", exited: true, exitCode: r.code}, nil
}

func TestStatusOfJobThatExitsDuringStart(t *testing.T) {
	ex := executor.New("testhost", "", &instantExitRunner{code: 5}, lg.Discard)

	var gotStatus job.Status
	var statusErr error
	var cancelResult job.TerminateResult
	var cancelErr error

	// The sinks run before the handle is published; the queries must
	// already see the recorded exit code.
	_, err := ex.RunCommand(context.Background(), "true", executor.JobOptions{
		OnExit: func(int) {
			gotStatus, statusErr = ex.LastJobStatus()
			cancelResult, cancelErr = ex.CancelRunningJob()
		},
	})
	require.NoError(t, err)

	require.NoError(t, statusErr)
	assert.False(t, gotStatus.Running)
	assert.Equal(t, 5, gotStatus.ExitCode)

	require.NoError(t, cancelErr)
	assert.Equal(t, job.TermNotRunning, cancelResult)

	status, err := ex.LastJobStatus()
	require.NoError(t, err)
	assert.Equal(t, 5, status.ExitCode)
	assert.Equal(t, []string{"done"}, ex.JobStdout())
}

func TestBaseExecutorHasNoTransferCapability(t *testing.T) {
	ex, _ := newTestExecutor(t)

	_, err := executor.AsTransfer(ex)
	assert.ErrorIs(t, err, executor.ErrNotImplemented)
}
