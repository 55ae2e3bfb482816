/*
Package scheduler submits tasks into a threadpool.Pool at fixed times, at
fixed intervals, or on cron schedules.

The scheduler is a producer only. A tick loop finds due entries and hands
them to the pool with Submit; workers in the pool run them. Submit never
blocks, so a slow task delays nothing but the workers running it.

Basic Usage:

	pool, _ := threadpool.New(4)

	s, _ := scheduler.NewWithConfig(scheduler.Config{Pool: pool})
	s.Start()
	defer func() {
		<-s.Stop()
		pool.Shutdown()
	}()

	task := threadpool.TaskFunc(func() error {
		return refreshCache()
	})

	// Schedule a one-time task
	s.Schedule("warmup", task, time.Now().Add(time.Second))

	// Schedule with delay
	s.ScheduleAfter("retry", task, 5*time.Minute)

	// Schedule repeating, first run on the next tick
	s.ScheduleRepeating("refresh", task, 30*time.Second)

Cron Expressions:

ScheduleCron accepts standard 5-field expressions, 6-field expressions with a
leading seconds field, and descriptors:

	s.ScheduleCron("report", "0 9 * * 1-5", task)   // 9:00 on weekdays
	s.ScheduleCron("healthcheck", "0/10 * * * * *", task) // every 10 seconds
	s.ScheduleCron("gc", "@hourly", task)
	s.ScheduleCron("sync", "@every 90s", task)

Expressions are evaluated in Config.Location (default time.Local).
ValidateCronExpression checks an expression without scheduling anything.

Task Management:

	entries := s.List()          // sorted by next run time
	next, ok := s.Next("report") // next submission time
	s.Cancel("report")
	s.CancelAll()

Retries:

BackoffTask retries a failing task with exponential backoff inside one
worker:

	s.ScheduleRepeating("upload", scheduler.BackoffTask{
		Task:         upload,
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	}, time.Minute)

Lifecycle:

Stop halts the tick loop and returns a channel that is closed once the loop
has exited. When Config.Pool is nil the scheduler owns a 4-worker pool and
also drains and shuts it down before closing the channel. A stopped scheduler
cannot be restarted.

If the pool rejects a due task, for example because it was shut down, the
failure is logged and passed to Config.OnSubmitError. NewWithMetrics exports
gopool_scheduler_triggers_total and gopool_scheduler_submit_errors_total.
*/
package scheduler
