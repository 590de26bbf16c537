package worker

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrDispatcherBusy    = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Job is one conversation turn. done is closed once the job has run or was skipped.
type Job struct {
	Name string
	Run  func(ctx context.Context) error

	ctx  context.Context
	err  error
	done chan struct{}
}

// Dispatcher runs jobs one at a time in submission order on a single worker.
type Dispatcher struct {
	JobQueue chan *Job // interface for outer jobs get in the dispatcher
	worker   *Worker

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{JobQueue: make(chan *Job, queueSize)}
	d.worker = NewWorker(d.JobQueue)
	d.worker.Start()
	return d
}

// Submit queues fn without waiting. It fails fast with ErrDispatcherBusy
// when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) (*Job, error) {
	job := &Job{Name: name, Run: fn, ctx: ctx, done: make(chan struct{})}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, ErrDispatcherStopped
	}
	select {
	case d.JobQueue <- job:
		debugLog("queued %s (%d waiting)", name, len(d.JobQueue))
		return job, nil
	default:
		debugLog("rejected %s: queue full", name)
		return nil, ErrDispatcherBusy
	}
}

// Do submits fn and blocks until it has finished or was skipped because ctx
// ended while it waited.
func (d *Dispatcher) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	job, err := d.Submit(ctx, name, fn)
	if err != nil {
		return err
	}
	return job.Wait()
}

// Stop refuses new jobs and returns once the queue has drained. Queued jobs
// whose context is still live run first; the rest are skipped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.JobQueue)
	d.mu.Unlock()
	d.worker.Wait()
}

// Wait blocks until the job completes and returns its error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}
