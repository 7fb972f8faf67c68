// Package workerpool provides a small generic pool bounding how many jobs
// run concurrently. Payloads carry their own context and an optional
// cleanup hook.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/avolkov/hostrun/internal/lg"
)

const TotalMaxWorkers = 10

type JobFunc[T any] func(T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

type Pool[T any] struct {
	Jobs          chan Job[T]
	activeWorkers int32
	wg            sync.WaitGroup
	quit          chan struct{}
	maxWorkers    int
	sem           chan struct{}
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = TotalMaxWorkers
	}
	pool := &Pool[T]{
		Jobs:       make(chan Job[T], maxWorkers),
		quit:       make(chan struct{}),
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
	go pool.dispatch()
	return pool
}

func (p *Pool[T]) Stop() {
	close(p.quit)
	p.wg.Wait()
	// Jobs that were still buffered never reach a worker; their cleanup
	// hooks must run anyway.
	p.drainJobs()
}

// Submit queues a job. Jobs submitted after Stop are rejected.
func (p *Pool[T]) Submit(job Job[T]) {
	logger := lg.FromContext(job.Ctx)
	select {
	case <-p.quit:
		logger.Warn("worker pool is shutting down, job rejected")
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
		return
	default:
	}
	select {
	case p.Jobs <- job:
		logger.Debug("job submitted to pool")
	case <-p.quit:
		logger.Warn("worker pool is shutting down, job rejected")
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}
}

func (p *Pool[T]) dispatch() {
	for {
		select {
		case job := <-p.Jobs:
			select {
			case p.sem <- struct{}{}:
			case <-p.quit:
				if job.CleanupFunc != nil {
					job.CleanupFunc()
				}
				p.drainJobs()
				return
			}
			p.wg.Add(1)
			atomic.AddInt32(&p.activeWorkers, 1)
			go p.worker(job)
		case <-p.quit:
			p.drainJobs()
			return
		}
	}
}

// drainJobs empties the queue and runs the cleanup hook of every job that
// will never execute.
func (p *Pool[T]) drainJobs() {
	for {
		select {
		case job := <-p.Jobs:
			if job.CleanupFunc != nil {
				job.CleanupFunc()
			}
		default:
			return
		}
	}
}

func (p *Pool[T]) worker(job Job[T]) {
	defer p.wg.Done()
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer func() { <-p.sem }()
	defer func() {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}()
	logger := lg.FromContext(job.Ctx)

	done := make(chan error, 1)
	go func() { done <- job.Fn(job.Payload) }()

	select {
	case <-job.Ctx.Done():
		logger.Info("job canceled", lg.Err(job.Ctx.Err()))
	case err := <-done:
		if err != nil {
			logger.Error("job failed", lg.Err(err))
		} else {
			logger.Debug("job finished",
				lg.Int("workers", int(atomic.LoadInt32(&p.activeWorkers))))
		}
	}
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}
