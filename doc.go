/*
Package gopool provides a fixed-size thread pool and the synchronization
primitives that go with it.

Scheduling (pkg/scheduling):
  - threadpool: Fixed workers draining one shared FIFO queue
  - scheduler: Delayed, repeating and cron submissions into a pool

Resource limiting (pkg/ratelimit):
  - semaphore: Counting semaphore for bounded resource signaling
  - distributed: The same semaphore shared across processes with Redis

Example usage:

	import (
		"github.com/vnykmshr/gopool/pkg/ratelimit/semaphore"
		"github.com/vnykmshr/gopool/pkg/scheduling/threadpool"
	)

	pool := threadpool.MustNew(4) // 4 workers
	conns := semaphore.MustNew(2) // at most 2 tasks hold a connection

	pool.SubmitFunc(func() {
		conns.Acquire()
		defer conns.Release()
		// use the connection
	})

	pool.Shutdown() // drains the queue, then waits for every worker
*/
package gopool
