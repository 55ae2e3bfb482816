package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/gopool/internal/console"
	"github.com/vnykmshr/gopool/pkg/scheduling/threadpool"
)

// demoTask simulates a unit of work: it reports its start, sleeps for d and
// reports completion. Cancelling ctx cuts the sleep short; that is a normal
// stop, not a failure. When p is non-nil the task holds one permit for its
// whole run.
type demoTask struct {
	id  string
	seq int
	d   time.Duration
	out *console.Sink
	p   permits
	ctx context.Context
}

func newDemoTask(ctx context.Context, seq int, d time.Duration, out *console.Sink, p permits) *demoTask {
	return &demoTask{
		id:  uuid.NewString(),
		seq: seq,
		d:   d,
		out: out,
		p:   p,
		ctx: ctx,
	}
}

func (t *demoTask) Execute() error {
	if t.p != nil {
		if err := t.p.acquire(t.ctx); err != nil {
			if stopRequested(t.ctx, err) {
				t.out.Printf("task %d [%s] interrupted before start\n", t.seq, t.id)
				return nil
			}
			return fmt.Errorf("task %d: acquire permit: %w", t.seq, err)
		}
		defer t.p.release(t.ctx)
	}

	t.out.Printf("task %d [%s] started\n", t.seq, t.id)

	timer := time.NewTimer(t.d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.ctx.Done():
		t.out.Printf("task %d [%s] interrupted\n", t.seq, t.id)
		return nil
	}

	t.out.Printf("task %d [%s] finished after %v\n", t.seq, t.id, t.d)
	return nil
}

// stopRequested reports whether err comes from ctx ending (interrupt or
// --run-for) rather than from the permit backend.
func stopRequested(ctx context.Context, err error) bool {
	return ctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

var _ threadpool.Task = (*demoTask)(nil)
