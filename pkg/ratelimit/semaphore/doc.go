/*
Package semaphore provides a counting semaphore for bounding access to a
resource of fixed capacity.

A semaphore holds a non-negative number of permits. Acquire blocks the calling
goroutine until a permit is available and takes it; Release returns a permit and
wakes one blocked caller. A semaphore created with one permit behaves as a
mutex.

Basic usage:

	sem, err := semaphore.New(3) // at most 3 holders at once
	if err != nil {
		log.Fatal(err)
	}

	sem.Acquire()
	defer sem.Release()
	// use the resource

Non-blocking acquisition:

	if sem.TryAcquire() {
		defer sem.Release()
		// use the resource
	}

Blocking Semantics:

Acquire waits on a condition variable and re-checks the permit count after
every wakeup, so spurious wakeups and several waiters racing for one permit
are both handled. A single Release lets exactly one waiter proceed.

Acquire has no timeout and no cancellation. A goroutine blocked in Acquire with
no Release forthcoming stays blocked forever; avoiding that is the caller's
responsibility. Use pkg/ratelimit/distributed when a context-aware wait is
needed across processes.

Release never blocks and does not enforce an upper bound. Releasing a permit
that was never acquired increases the available count.

Metrics:

	sem, err := semaphore.NewWithMetrics(5, "db_connections")

records gopool_semaphore_available, gopool_semaphore_waiting,
gopool_semaphore_acquired_total and gopool_semaphore_wait_duration_seconds.

Thread Safety:

All methods are safe for concurrent use from multiple goroutines.
*/
package semaphore
