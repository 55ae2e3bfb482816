/*
Package ratelimit provides primitives that bound access to shared resources.

  - semaphore: In-process counting semaphore built on a mutex and condition variable
  - distributed: Counting semaphore shared by many processes through Redis

In-process:

	sem := semaphore.MustNew(3) // 3 permits
	sem.Acquire()               // blocks while no permit is available
	defer sem.Release()

Across processes:

	sem, err := distributed.New(ctx, distributed.Config{
		Redis:   rdb,
		Key:     "jobs:permits",
		Initial: 3,
	})
	if err := sem.Acquire(ctx); err != nil {
		return err
	}
	defer sem.Release(ctx)

The in-process Acquire has no timeout; a permit that is never released blocks
waiters forever. The distributed Acquire honors its context.
*/
package ratelimit
