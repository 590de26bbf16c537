package worker

import "fmt"

type Worker struct {
	jobChannel <-chan *Job
	finished   chan struct{}
}

func NewWorker(jobs <-chan *Job) *Worker {
	return &Worker{
		jobChannel: jobs,
		finished:   make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		defer close(w.finished)
		for job := range w.jobChannel {
			w.handle(job)
		}
	}()
}

// Wait blocks until the job channel is closed and drained.
func (w *Worker) Wait() {
	<-w.finished
}

func (w *Worker) handle(job *Job) {
	defer close(job.done)
	if err := job.ctx.Err(); err != nil {
		debugLog("skip %s: %v", job.Name, err)
		job.err = err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			job.err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	debugLog("run %s", job.Name)
	job.err = job.Run(job.ctx)
}
