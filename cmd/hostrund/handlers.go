package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/hostrun/internal/events"
	"github.com/avolkov/hostrun/internal/executor"
	"github.com/avolkov/hostrun/internal/job"
	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/output"
	"github.com/avolkov/hostrun/internal/persistence"
	"github.com/avolkov/hostrun/internal/serverutil"
	"github.com/avolkov/hostrun/pkg/workerpool"
)

const maxJobTime = 5 * time.Minute

type runRequest struct {
	Host    string `json:"host" validate:"required"`
	Command string `json:"command" validate:"required"`
}

type runResponse struct {
	RequestUID uuid.UUID `json:"requestUid"`
}

type cancelRequest struct {
	Host string `json:"host" validate:"required"`
}

type statusResponse struct {
	Running  bool `json:"running"`
	ExitCode *int `json:"exitCode,omitempty"`
}

type jobSubmission struct {
	uid     uuid.UUID
	host    string
	command string
}

// agent ties the host set, the worker pool and the optional event
// publisher together behind the HTTP and Kafka entry points.
type agent struct {
	hosts   *hostSet
	pool    *workerpool.Pool[jobSubmission]
	pub     *events.Publisher  // nil when Kafka is not configured
	results persistence.Writer // nil when no results dir is configured
	filters *output.Chain
	log     lg.Logger
}

func newAgent(hosts *hostSet, pool *workerpool.Pool[jobSubmission], pub *events.Publisher, results persistence.Writer, log lg.Logger) *agent {
	return &agent{
		hosts:   hosts,
		pool:    pool,
		pub:     pub,
		results: results,
		filters: output.NewChain(),
		log:     log,
	}
}

// submit queues one command for execution and returns its request id.
func (a *agent) submit(host, command string) uuid.UUID {
	uid := uuid.New()
	jobCtx, cancel := context.WithTimeout(lg.Attach(context.Background(), a.log), maxJobTime)
	a.pool.Submit(workerpool.Job[jobSubmission]{
		Payload: jobSubmission{uid: uid, host: host, command: command},
		Fn: func(sub jobSubmission) error {
			return a.runOne(jobCtx, sub)
		},
		Ctx:         jobCtx,
		CleanupFunc: cancel,
	})
	return uid
}

// runOne starts the command, waits for completion and publishes the result.
// Starts are serialized per host: the executor tracks one job at a time.
func (a *agent) runOne(ctx context.Context, sub jobSubmission) error {
	runner, err := a.hosts.get(ctx, sub.host)
	if err != nil {
		return err
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()

	pending, err := runner.exec.RunCommand(ctx, sub.command, executor.JobOptions{})
	if err != nil {
		return fmt.Errorf("start job on %s: %w", sub.host, err)
	}
	code, err := pending.Wait(ctx)
	if err != nil {
		// The wait was cut short; the job itself keeps running and is
		// still observable through the status endpoints.
		return fmt.Errorf("waiting for job on %s: %w", sub.host, err)
	}

	a.log.Info("job completed",
		lg.String("host", sub.host),
		lg.String("request", sub.uid.String()),
		lg.Int("exit_code", code))

	ev := events.JobFinished{
		Host:       sub.host,
		JobID:      runner.exec.LastJobID(),
		Command:    sub.command,
		ExitCode:   code,
		Stdout:     runner.exec.JobStdout(),
		FinishedAt: time.Now(),
	}
	if a.pub != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.pub.PublishFinished(pubCtx, ev); err != nil {
			a.log.Error("publishing job event failed", lg.Err(err))
		}
	}
	if a.results != nil {
		name := sub.uid.String() + ".json"
		if err := persistence.WriteJSONToFile(a.results, name, ev); err != nil {
			a.log.Error("persisting job result failed", lg.Err(err))
		}
	}
	return nil
}

func (a *agent) handleRun(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[runRequest](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !a.hosts.knows(req.Host) {
		http.Error(rw, fmt.Sprintf("unknown host %q", req.Host), http.StatusNotFound)
		return
	}

	uid := a.submit(req.Host, req.Command)

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(rw).Encode(runResponse{RequestUID: uid}); err != nil {
		a.log.Error("failed to encode response", lg.Err(err))
	}
}

func (a *agent) handleStatus(rw http.ResponseWriter, r *http.Request) {
	runner, ok := a.lookupRunner(rw, r)
	if !ok {
		return
	}
	status, err := runner.exec.LastJobStatus()
	if errors.Is(err, executor.ErrNoJob) {
		http.Error(rw, "no job has been started", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{Running: status.Running}
	if !status.Running {
		code := status.ExitCode
		resp.ExitCode = &code
	}
	writeJSON(rw, resp, a.log)
}

// handleStdout returns the last job's output lines. An optional
// comma-separated filters parameter post-processes them, e.g.
// ?filters=trim,key_value_json.
func (a *agent) handleStdout(rw http.ResponseWriter, r *http.Request) {
	runner, ok := a.lookupRunner(rw, r)
	if !ok {
		return
	}
	lines := runner.exec.JobStdout()
	if raw := r.URL.Query().Get("filters"); raw != "" {
		filtered, err := a.filters.Apply(lines, strings.Split(raw, ",")...)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		lines = filtered
	}
	writeJSON(rw, map[string][]string{"lines": lines}, a.log)
}

func (a *agent) handleCancel(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[cancelRequest](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}
	runner, found := a.hosts.lookup(req.Host)
	if !found {
		http.Error(rw, fmt.Sprintf("no jobs ran on host %q", req.Host), http.StatusNotFound)
		return
	}

	result, err := runner.exec.CancelRunningJob()
	if errors.Is(err, executor.ErrNoJob) {
		http.Error(rw, "no job has been started", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	verdict := "signaled"
	if result == job.TermNotRunning {
		verdict = "not-running"
	}
	writeJSON(rw, map[string]string{"result": verdict}, a.log)
}

func (a *agent) lookupRunner(rw http.ResponseWriter, r *http.Request) (*hostRunner, bool) {
	name := r.URL.Query().Get("host")
	if name == "" {
		http.Error(rw, "missing host parameter", http.StatusBadRequest)
		return nil, false
	}
	runner, found := a.hosts.lookup(name)
	if !found {
		http.Error(rw, fmt.Sprintf("no jobs ran on host %q", name), http.StatusNotFound)
		return nil, false
	}
	return runner, true
}

func writeJSON(rw http.ResponseWriter, v any, log lg.Logger) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Error("failed to encode response", lg.Err(err))
	}
}
