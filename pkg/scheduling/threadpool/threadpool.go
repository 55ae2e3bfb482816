package threadpool

import (
	"fmt"
	"runtime/debug"
	"time"

	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
)

// Submit adds a task to the tail of the shared queue.
func (p *threadPool) Submit(task Task) error {
	if task == nil {
		return gferrors.ErrNilTask
	}

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return fmt.Errorf("cannot submit task: %w", gferrors.ErrPoolShutdown)
	}
	p.queue.push(queuedTask{task: task, enqueued: time.Now()})
	p.totalSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// SubmitFunc submits a zero-argument function with no result.
func (p *threadPool) SubmitFunc(fn func()) error {
	if fn == nil {
		return gferrors.ErrNilTask
	}
	return p.Submit(Func(fn))
}

// Shutdown drains the queue and joins every worker.
func (p *threadPool) Shutdown() error {
	if !p.shutdownOnce.CompareAndSwap(false, true) {
		<-p.done
		return gferrors.ErrAlreadyShutdown
	}

	p.mu.Lock()
	p.stopping = true
	queued := p.queue.len()
	p.mu.Unlock()

	p.logger.Debug("thread pool shutting down", "queued", queued)
	p.cond.Broadcast()

	p.workerWg.Wait()
	close(p.done)

	p.logger.Debug("thread pool stopped",
		"completed", p.totalCompleted.Load(),
		"failed", p.totalFailed.Load())
	return nil
}

// Done returns a channel closed after all workers have exited.
func (p *threadPool) Done() <-chan struct{} {
	return p.done
}

// Size returns the number of workers in the pool.
func (p *threadPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *threadPool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *threadPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalSubmitted returns the total number of tasks accepted by Submit.
func (p *threadPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of finished tasks.
func (p *threadPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// TotalFailed returns the number of finished tasks that failed.
func (p *threadPool) TotalFailed() int64 {
	return p.totalFailed.Load()
}

// next blocks until a task is available or the pool is stopping with an
// empty queue. ok is false only in the latter case.
func (p *threadPool) next() (qt queuedTask, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.stopping && p.queue.len() == 0 {
		p.cond.Wait()
	}

	if p.queue.len() == 0 {
		return queuedTask{}, false
	}

	p.activeWorkers.Add(1)
	return p.queue.pop(), true
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		w.guard("OnWorkerStart", func() { p.config.OnWorkerStart(w.id) })
	}
	p.logger.Debug("worker started", "worker_id", w.id)

	for {
		qt, ok := p.next()
		if !ok {
			break
		}
		w.executeTask(qt)
	}

	p.logger.Debug("worker stopped", "worker_id", w.id)
	if p.config.OnWorkerStop != nil {
		w.guard("OnWorkerStop", func() { p.config.OnWorkerStop(w.id) })
	}
}

// executeTask runs one task outside the queue lock and reports its outcome.
func (w *worker) executeTask(qt queuedTask) {
	p := w.pool
	task := unwrapTask(qt.task)

	if p.config.OnTaskStart != nil {
		w.guard("OnTaskStart", func() { p.config.OnTaskStart(w.id, task) })
	}

	start := time.Now()
	panicErr, err := w.invoke(qt.task)
	duration := time.Since(start)

	p.activeWorkers.Add(-1)
	if err != nil {
		p.totalFailed.Add(1)
		w.reportFailure(task, err, panicErr)
	}
	p.totalCompleted.Add(1)

	if p.config.OnTaskComplete != nil {
		result := Result{
			Task:      task,
			Error:     err,
			QueueWait: start.Sub(qt.enqueued),
			Duration:  duration,
			WorkerID:  w.id,
		}
		w.guard("OnTaskComplete", func() { p.config.OnTaskComplete(w.id, result) })
	}
}

// invoke calls task.Execute. A panic is converted into a *TaskError that is
// returned both as panicErr and as err.
func (w *worker) invoke(task Task) (panicErr *TaskError, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = &TaskError{
				WorkerID: w.id,
				Task:     unwrapTask(task),
				Err:      fmt.Errorf("%w: %v", gferrors.ErrTaskPanicked, r),
				Panic:    r,
				Stack:    debug.Stack(),
			}
			err = panicErr
		}
	}()

	return nil, task.Execute()
}

// reportFailure logs a failed task and forwards it to the error sink.
// panicErr is non-nil only when this worker recovered a panic; a *TaskError
// returned by the task itself is treated like any other error.
func (w *worker) reportFailure(task Task, err error, panicErr *TaskError) {
	p := w.pool

	taskErr := panicErr
	if taskErr == nil {
		taskErr = &TaskError{WorkerID: w.id, Task: task, Err: err}
	}

	if taskErr.Panicked() {
		p.logger.Error("task panicked",
			"worker_id", w.id,
			"panic", fmt.Sprint(taskErr.Panic),
			"stack", string(taskErr.Stack))
	} else {
		p.logger.Error("task failed", "worker_id", w.id, "error", err)
	}

	if p.config.ErrorHandler != nil {
		w.guard("ErrorHandler", func() { p.config.ErrorHandler(taskErr) })
	}
}

// guard runs a user callback, containing any panic so the worker survives.
func (w *worker) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("callback panicked",
				"callback", name,
				"worker_id", w.id,
				"panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// unwrapper is implemented by decorating tasks such as the metrics wrapper.
type unwrapper interface {
	Unwrap() Task
}

// unwrapTask strips decorating wrappers so callbacks see the submitted task.
func unwrapTask(task Task) Task {
	for {
		u, ok := task.(unwrapper)
		if !ok {
			return task
		}
		task = u.Unwrap()
	}
}
