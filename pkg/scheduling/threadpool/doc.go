/*
Package threadpool provides a fixed-size pool of worker goroutines that run
submitted tasks from a single shared FIFO queue.

Basic usage:

	pool, err := threadpool.New(4) // 4 workers
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Shutdown()

	pool.SubmitFunc(func() {
		// Do work
	})

	task := threadpool.TaskFunc(func() error {
		return doWork()
	})
	if err := pool.Submit(task); err != nil {
		log.Printf("Failed to submit: %v", err)
	}

Queue Discipline:

The queue and the stopping flag share one mutex. Submit appends under that
mutex and signals one idle worker. Workers wait on a condition variable until
the queue is non-empty or the pool is stopping, take the head of the queue, and
release the mutex before running the task, so tasks on different workers run in
parallel. Dequeue order is submission order; completion order is not.

The queue is unbounded and Submit never blocks on capacity.

Shutdown:

Shutdown marks the pool as stopping, wakes every idle worker and blocks until
all of them have exited. A worker exits only when the pool is stopping and the
queue is empty, so tasks queued before Shutdown still run. Running tasks are
never interrupted.

	pool.SubmitFunc(longJob)
	pool.SubmitFunc(longJob)
	pool.Shutdown() // returns after both jobs finished

Submit returns errors.ErrPoolShutdown once Shutdown has been called. A second
Shutdown waits for the same termination and returns errors.ErrAlreadyShutdown.

Error Handling:

A task that returns an error or panics never takes its worker down. The
failure is logged through the configured slog.Logger and passed to
Config.ErrorHandler as a *TaskError; panics carry the recovered value and
stack trace:

	pool, _ := threadpool.NewWithConfig(threadpool.Config{
		WorkerCount: 8,
		Logger:      slog.Default(),
		ErrorHandler: func(err *threadpool.TaskError) {
			if err.Panicked() {
				alert(err.Panic, err.Stack)
			}
		},
	})

Results are not propagated back to the submitter. Use OnTaskComplete for
per-task observation:

	config := threadpool.Config{
		WorkerCount: 4,
		OnTaskComplete: func(workerID int, result threadpool.Result) {
			log.Printf("worker %d ran task in %v (queued %v)",
				workerID, result.Duration, result.QueueWait)
		},
	}

Monitoring and Metrics:

	pool, _ := threadpool.NewWithMetrics(4, "ingest")

exports gopool_threadpool_workers, active_workers, queued_tasks,
tasks_submitted_total, tasks_rejected_total, tasks_completed_total,
tasks_failed_total, task_queue_wait_seconds and task_duration_seconds.

Thread Safety:

All pool operations are safe for concurrent use from multiple goroutines,
except that Shutdown must not be called from inside a task.
*/
package threadpool
