// Package distributed provides a counting semaphore shared across processes,
// using Redis as the coordination backend.
//
// It has the same contract as the in-process semaphore package: Acquire
// blocks until a permit is available, Release returns one and wakes a single
// waiter, and there is no upper bound on Release. Because every call crosses
// the network, blocking operations take a context and every operation can
// return an error.
//
// # Quick Start
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	config := distributed.DefaultConfig()
//	config.Redis = rdb
//	config.Key = "export_slots"
//	config.Initial = 3 // at most 3 exports cluster-wide
//
//	sem, err := distributed.New(ctx, config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sem.Close()
//
//	if err := sem.Acquire(ctx); err != nil {
//		return err
//	}
//	defer sem.Release(ctx)
//
// # Redis Layout
//
// A semaphore under key K uses two Redis keys:
//
//   - K:initial holds the initial permit count and marks the semaphore as created
//   - K:permits is a list with one element per available permit
//
// The first instance to open K fills the list atomically with a Lua script;
// later instances keep the existing state even if their Initial differs.
// Acquire is a BLPOP on the permit list, so waiters in different processes are
// served in the order Redis queued their pops. Release is an RPUSH.
//
// # Crash Safety
//
// Permits held by a process that dies without calling Release or Close are
// lost. Close returns every permit the instance still holds; Reset restores
// the initial count for all instances.
package distributed
