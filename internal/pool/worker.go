package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned for work submitted after Shutdown
var ErrPoolClosed = errors.New("worker pool is closed")

// Task represents a unit of work to be processed by the worker pool
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
	done chan error
}

// WorkerPool runs blocking resolution work off the update loop goroutines
type WorkerPool struct {
	jobs       chan job
	wg         sync.WaitGroup
	mu         sync.RWMutex // guards closed and the close of jobs
	closed     bool
	activeJobs int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workerCount int, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}

	wp := &WorkerPool{
		jobs: make(chan job, queueSize),
	}

	for i := 0; i < workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for j := range wp.jobs {
		atomic.AddInt64(&wp.activeJobs, 1)
		j.done <- runTask(j.ctx, j.task)
		atomic.AddInt64(&wp.activeJobs, -1)
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Do queues task and waits for it to finish. Waiting for a free worker is
// abandoned when ctx is done; a started task runs to completion.
func (wp *WorkerPool) Do(ctx context.Context, task Task) error {
	j := job{ctx: ctx, task: task, done: make(chan error, 1)}

	wp.mu.RLock()
	if wp.closed {
		wp.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case wp.jobs <- j:
		wp.mu.RUnlock()
	case <-ctx.Done():
		wp.mu.RUnlock()
		return ctx.Err()
	}

	return <-j.done
}

// ActiveJobs returns the current number of active jobs being processed
func (wp *WorkerPool) ActiveJobs() int64 {
	return atomic.LoadInt64(&wp.activeJobs)
}

// Shutdown stops accepting work and waits for queued and running tasks,
// bounded by ctx
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
