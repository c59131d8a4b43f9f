package executor

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrShutdown is returned by Submit after executor was shut down.
var ErrShutdown = errors.New("task executor is shut down")

// Task is a unit of work run by Executor. It must return once ctx is done.
type Task func(ctx context.Context) error

// Executor runs tasks asynchronously.
type Executor interface {
	Submit(ctx context.Context, task Task) (*Handle, error)
	Shutdown()
}

var _ = []Executor{&SemaphoreExecutor{}}

// Handle tracks a submitted task.
type Handle struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Wait blocks until task is finished and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when task is finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel cancels task context. A task still waiting for a slot is not started.
func (h *Handle) Cancel() {
	h.cancel()
}

// SemaphoreExecutor runs up to concurrency tasks at once.
type SemaphoreExecutor struct {
	// workerCountSem tracks number of running tasks
	workerCountSem *semaphore.Weighted

	mu       sync.Mutex
	shutdown bool
	running  sync.WaitGroup
}

// NewSemaphoreExecutor builds SemaphoreExecutor, concurrency less than 1 is treated as 1.
func NewSemaphoreExecutor(concurrency int) *SemaphoreExecutor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SemaphoreExecutor{workerCountSem: semaphore.NewWeighted(int64(concurrency))}
}

// Submit schedules task. Task context is canceled when ctx is done or Handle.Cancel is called.
func (e *SemaphoreExecutor) Submit(ctx context.Context, task Task) (*Handle, error) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	e.running.Add(1)
	e.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer e.running.Done()
		defer close(h.done)
		defer cancel()

		if err := e.workerCountSem.Acquire(taskCtx, 1); err != nil {
			h.err = err
			return
		}
		defer e.workerCountSem.Release(1)
		h.err = task(taskCtx)
	}()
	return h, nil
}

// Shutdown rejects new tasks and waits for submitted ones.
func (e *SemaphoreExecutor) Shutdown() {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.running.Wait()
}
