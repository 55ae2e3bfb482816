/*
Package scheduling provides task execution and scheduling primitives for Go applications.

This package groups two components:

  - threadpool: Fixed set of workers consuming one shared FIFO queue
  - scheduler: Time-based and cron submission of tasks into a pool

Thread Pool:

The thread pool runs every submitted task exactly once on one of its workers:

	pool := threadpool.MustNew(4) // 4 workers, unbounded queue

	pool.Submit(threadpool.TaskFunc(func() error {
		// Do work
		return nil
	}))

	pool.Shutdown() // runs everything queued, then joins the workers

A task that returns an error or panics is reported to Config.ErrorHandler
and logged; the worker that ran it keeps going.

Task Scheduler:

The scheduler hands due tasks to a pool:

	sched, _ := scheduler.NewWithConfig(scheduler.Config{Pool: pool})
	sched.Start()
	defer func() { <-sched.Stop() }()

	// One-time task
	sched.ScheduleAfter("warmup", task, time.Minute)

	// Recurring task
	sched.ScheduleRepeating("heartbeat", task, time.Hour)

	// Cron-style scheduling
	sched.ScheduleCron("report", "0 9 * * MON-FRI", task) // Weekdays at 9 AM

Both components are safe for concurrent use.
*/
package scheduling
