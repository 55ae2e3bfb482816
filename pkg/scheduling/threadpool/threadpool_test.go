package threadpool

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gopool/internal/testutil"
	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
	"github.com/vnykmshr/gopool/pkg/metrics"
)

// TestTask is a simple task for testing.
type TestTask struct {
	ID          int
	Duration    time.Duration
	ShouldErr   bool
	ShouldPanic bool
	Executed    *int32 // Atomic counter
}

func (t *TestTask) Execute() error {
	atomic.AddInt32(t.Executed, 1)

	if t.ShouldPanic {
		panic("test panic")
	}

	if t.Duration > 0 {
		time.Sleep(t.Duration)
	}

	if t.ShouldErr {
		return errors.New("test error")
	}

	return nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPool(t *testing.T, config Config) Pool {
	t.Helper()
	if config.Logger == nil {
		config.Logger = quietLogger
	}
	pool, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	return pool
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		workerCount int
		expectErr   bool
	}{
		{"single worker", 1, false},
		{"several workers", 4, false},
		{"zero workers", 0, true},
		{"negative workers", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.workerCount)
			if tt.expectErr {
				testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)
				if pool != nil {
					t.Error("expected nil pool on error")
				}
				return
			}

			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Size(), tt.workerCount)
			testutil.AssertNoError(t, pool.Shutdown())
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	MustNew(0)
}

func TestBasicTaskExecution(t *testing.T) {
	results := make(chan Result, 1)
	pool := newTestPool(t, Config{
		WorkerCount: 2,
		OnTaskComplete: func(workerID int, result Result) {
			results <- result
		},
	})
	defer pool.Shutdown()

	var executed int32
	task := &TestTask{
		ID:       1,
		Duration: 10 * time.Millisecond,
		Executed: &executed,
	}

	testutil.AssertNoError(t, pool.Submit(task))

	select {
	case result := <-results:
		testutil.AssertEqual(t, result.Error, nil)
		testutil.AssertEqual(t, result.Task == Task(task), true)
		testutil.AssertEqual(t, result.WorkerID >= 0, true)
		testutil.AssertEqual(t, result.Duration >= 10*time.Millisecond, true)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(1))
}

func TestSubmitFunc(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 1})

	var ran atomic.Bool
	testutil.AssertNoError(t, pool.SubmitFunc(func() { ran.Store(true) }))
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, ran.Load(), true)
}

func TestSubmitNilTask(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 1})
	defer pool.Shutdown()

	testutil.AssertErrorIs(t, pool.Submit(nil), gferrors.ErrNilTask)
	testutil.AssertErrorIs(t, pool.SubmitFunc(nil), gferrors.ErrNilTask)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestNoTaskLoss(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 4})

	const numTasks = 500
	counters := make([]int32, numTasks)
	for i := 0; i < numTasks; i++ {
		i := i
		err := pool.SubmitFunc(func() { atomic.AddInt32(&counters[i], 1) })
		testutil.AssertNoError(t, err)
	}

	testutil.AssertNoError(t, pool.Shutdown())

	for i := range counters {
		if got := atomic.LoadInt32(&counters[i]); got != 1 {
			t.Fatalf("task %d executed %d times, want 1", i, got)
		}
	}
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(numTasks))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(numTasks))
}

func TestNoDoubleExecutionConcurrentProducers(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 5})

	const producers = 10
	const tasksPerProducer = 200

	counters := make([]int32, producers*tasksPerProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < tasksPerProducer; j++ {
				idx := p*tasksPerProducer + j
				if err := pool.SubmitFunc(func() { atomic.AddInt32(&counters[idx], 1) }); err != nil {
					t.Errorf("Failed to submit task: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	testutil.AssertNoError(t, pool.Shutdown())

	for i := range counters {
		if got := atomic.LoadInt32(&counters[i]); got != 1 {
			t.Fatalf("task %d executed %d times, want 1", i, got)
		}
	}
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(len(counters)))
}

func TestFIFODequeueOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	pool := newTestPool(t, Config{
		WorkerCount: 1,
		OnTaskStart: func(workerID int, task Task) {
			mu.Lock()
			order = append(order, task.(*TestTask).ID)
			mu.Unlock()
		},
	})

	const numTasks = 100
	for i := 0; i < numTasks; i++ {
		testutil.AssertNoError(t, pool.Submit(&TestTask{ID: i, Executed: new(int32)}))
	}
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, len(order), numTasks)
	for i, id := range order {
		if id != i {
			t.Fatalf("position %d ran task %d, want %d", i, id, i)
		}
	}
}

func TestFIFOAcrossProducers(t *testing.T) {
	// A happens-before edge between two submissions fixes their dequeue order
	// even when they come from different goroutines.
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int

	pool := newTestPool(t, Config{
		WorkerCount: 1,
		OnTaskStart: func(workerID int, task Task) {
			if tt, ok := task.(*TestTask); ok {
				mu.Lock()
				order = append(order, tt.ID)
				mu.Unlock()
			}
		},
	})

	testutil.AssertNoError(t, pool.SubmitFunc(func() { <-gate }))

	first := make(chan struct{})
	go func() {
		_ = pool.Submit(&TestTask{ID: 1, Executed: new(int32)})
		close(first)
	}()
	<-first
	testutil.AssertNoError(t, pool.Submit(&TestTask{ID: 2, Executed: new(int32)}))

	close(gate)
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, len(order), 2)
	testutil.AssertEqual(t, order[0], 1)
	testutil.AssertEqual(t, order[1], 2)
}

func TestParallelism(t *testing.T) {
	const workers = 4
	const taskDuration = 100 * time.Millisecond

	pool := newTestPool(t, Config{WorkerCount: workers})

	start := time.Now()
	for i := 0; i < workers; i++ {
		testutil.AssertNoError(t, pool.Submit(&TestTask{ID: i, Duration: taskDuration, Executed: new(int32)}))
	}
	testutil.AssertNoError(t, pool.Shutdown())
	elapsed := time.Since(start)

	// Serial execution would take workers*taskDuration.
	if elapsed >= workers*taskDuration/2 {
		t.Fatalf("tasks ran serially: elapsed %v for %d tasks of %v", elapsed, workers, taskDuration)
	}
}

func TestGracefulDrain(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 2})

	const numTasks = 40
	var executed int32
	for i := 0; i < numTasks; i++ {
		testutil.AssertNoError(t, pool.Submit(&TestTask{
			ID:       i,
			Duration: 2 * time.Millisecond,
			Executed: &executed,
		}))
	}

	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(numTasks))
	testutil.AssertEqual(t, pool.QueueSize(), 0)
}

func TestShutdownWaitsForRunningTask(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 1})

	started := make(chan struct{})
	var finished atomic.Bool
	testutil.AssertNoError(t, pool.SubmitFunc(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))
	<-started

	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertEqual(t, finished.Load(), true)
}

func TestTermination(t *testing.T) {
	var stopped int32
	pool := newTestPool(t, Config{
		WorkerCount:  3,
		OnWorkerStop: func(workerID int) { atomic.AddInt32(&stopped, 1) },
	})

	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, atomic.LoadInt32(&stopped), int32(3))
	select {
	case <-pool.Done():
	default:
		t.Fatal("Done should be closed after Shutdown returns")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 1})
	testutil.AssertNoError(t, pool.Shutdown())

	var executed int32
	err := pool.Submit(&TestTask{ID: 1, Executed: &executed})
	testutil.AssertErrorIs(t, err, gferrors.ErrPoolShutdown)
	testutil.AssertErrorIs(t, err, gferrors.ErrClosed)

	testutil.AssertErrorIs(t, pool.SubmitFunc(func() {}), gferrors.ErrPoolShutdown)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(0))
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestDuplicateShutdown(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 2})

	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertErrorIs(t, pool.Shutdown(), gferrors.ErrAlreadyShutdown)
	testutil.AssertErrorIs(t, pool.Shutdown(), gferrors.ErrAlreadyShutdown)
}

func TestConcurrentShutdown(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 2})

	release := make(chan struct{})
	var finished atomic.Bool
	testutil.AssertNoError(t, pool.SubmitFunc(func() {
		<-release
		finished.Store(true)
	}))

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- pool.Shutdown() }()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	var ok, already int
	for i := 0; i < callers; i++ {
		err := <-errs
		// every caller returns only after the running task finished
		testutil.AssertEqual(t, finished.Load(), true)
		switch {
		case err == nil:
			ok++
		case errors.Is(err, gferrors.ErrAlreadyShutdown):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	testutil.AssertEqual(t, ok, 1)
	testutil.AssertEqual(t, already, callers-1)
}

func TestTaskErrorIsolation(t *testing.T) {
	var handled []*TaskError
	var mu sync.Mutex

	pool := newTestPool(t, Config{
		WorkerCount: 1,
		ErrorHandler: func(err *TaskError) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		},
	})

	var executed int32
	failing := &TestTask{ID: 1, ShouldErr: true, Executed: &executed}
	testutil.AssertNoError(t, pool.Submit(failing))
	testutil.AssertNoError(t, pool.Submit(&TestTask{ID: 2, Executed: &executed}))
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(2))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(2))

	testutil.AssertEqual(t, len(handled), 1)
	taskErr := handled[0]
	testutil.AssertEqual(t, taskErr.Task == Task(failing), true)
	testutil.AssertEqual(t, taskErr.Panicked(), false)
	testutil.AssertEqual(t, taskErr.Err.Error(), "test error")
	testutil.AssertEqual(t, taskErr.WorkerID, 0)
}

func TestTaskPanicIsolation(t *testing.T) {
	handled := make(chan *TaskError, 1)
	pool := newTestPool(t, Config{
		WorkerCount:  1,
		ErrorHandler: func(err *TaskError) { handled <- err },
	})

	var executed int32
	panicking := &TestTask{ID: 1, ShouldPanic: true, Executed: &executed}
	testutil.AssertNoError(t, pool.Submit(panicking))
	// The single worker must survive to run this one.
	testutil.AssertNoError(t, pool.Submit(&TestTask{ID: 2, Executed: &executed}))
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(2))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))

	taskErr := <-handled
	testutil.AssertEqual(t, taskErr.Panicked(), true)
	testutil.AssertEqual(t, taskErr.Panic, interface{}("test panic"))
	testutil.AssertEqual(t, taskErr.Task == Task(panicking), true)
	testutil.AssertEqual(t, len(taskErr.Stack) > 0, true)
	testutil.AssertErrorIs(t, taskErr, gferrors.ErrTaskPanicked)
}

// A task that runs its own pool may return that pool's *TaskError; the
// report must still describe this pool's worker and task.
func TestReturnedTaskErrorIsNotTreatedAsOwnPanic(t *testing.T) {
	handled := make(chan *TaskError, 1)
	pool := newTestPool(t, Config{
		WorkerCount:  1,
		ErrorHandler: func(err *TaskError) { handled <- err },
	})

	inner := &TaskError{WorkerID: 7, Err: errors.New("inner failure"), Panic: "inner panic"}
	outer := TaskFunc(func() error {
		return fmt.Errorf("nested pool: %w", inner)
	})
	testutil.AssertNoError(t, pool.Submit(outer))
	testutil.AssertNoError(t, pool.Shutdown())

	taskErr := <-handled
	testutil.AssertEqual(t, taskErr.WorkerID, 0)
	testutil.AssertEqual(t, taskErr.Panicked(), false)
	testutil.AssertEqual(t, len(taskErr.Stack), 0)
	testutil.AssertEqual(t, taskErr.Err.Error(), "nested pool: worker 7: inner failure")
	if _, ok := taskErr.Task.(TaskFunc); !ok {
		t.Errorf("expected the submitted TaskFunc, got %T", taskErr.Task)
	}

	var nested *TaskError
	if !errors.As(taskErr.Err, &nested) || nested != inner {
		t.Error("expected the returned error chain to be preserved")
	}
}

func TestPanickingCallbacksAreContained(t *testing.T) {
	pool := newTestPool(t, Config{
		WorkerCount:    1,
		ErrorHandler:   func(err *TaskError) { panic("handler boom") },
		OnTaskStart:    func(workerID int, task Task) { panic("start boom") },
		OnTaskComplete: func(workerID int, result Result) { panic("complete boom") },
	})

	var executed int32
	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldErr: true, Executed: &executed}))
	testutil.AssertNoError(t, pool.Submit(&TestTask{Executed: &executed}))
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(2))
}

func TestFailuresAreLogged(t *testing.T) {
	out := testutil.NewMockWriter()
	pool := newTestPool(t, Config{
		WorkerCount: 1,
		Name:        "logged",
		Logger:      slog.New(slog.NewTextHandler(out, nil)),
	})

	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldErr: true, Executed: new(int32)}))
	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldPanic: true, Executed: new(int32)}))
	testutil.AssertNoError(t, pool.Shutdown())

	logged := out.String()
	for _, want := range []string{`msg="task failed"`, `msg="task panicked"`, "pool=logged", "worker_id=0", "test error"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %q:\n%s", want, logged)
		}
	}
}

func TestTaskCanSubmitFromWorker(t *testing.T) {
	// Would deadlock if tasks ran while holding the queue lock.
	pool := newTestPool(t, Config{WorkerCount: 1})

	var inner atomic.Bool
	testutil.AssertNoError(t, pool.SubmitFunc(func() {
		if err := pool.SubmitFunc(func() { inner.Store(true) }); err != nil {
			t.Errorf("nested submit failed: %v", err)
		}
	}))

	testutil.Eventually(t, inner.Load, time.Second, time.Millisecond)
	testutil.AssertNoError(t, pool.Shutdown())
}

func TestWorkerCallbacks(t *testing.T) {
	var workerStarted, workerStopped int32
	var taskStarted, taskCompleted int32

	pool := newTestPool(t, Config{
		WorkerCount: 2,
		OnWorkerStart: func(workerID int) {
			atomic.AddInt32(&workerStarted, 1)
		},
		OnWorkerStop: func(workerID int) {
			atomic.AddInt32(&workerStopped, 1)
		},
		OnTaskStart: func(workerID int, task Task) {
			atomic.AddInt32(&taskStarted, 1)
		},
		OnTaskComplete: func(workerID int, result Result) {
			atomic.AddInt32(&taskCompleted, 1)
		},
	})

	testutil.WaitForInt32(t, &workerStarted, 2, time.Second)

	testutil.AssertNoError(t, pool.Submit(&TestTask{ID: 1, Executed: new(int32)}))
	testutil.WaitForInt32(t, &taskCompleted, 1, time.Second)
	testutil.AssertEqual(t, atomic.LoadInt32(&taskStarted), int32(1))

	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertEqual(t, atomic.LoadInt32(&workerStopped), int32(2))
}

func TestActiveWorkersAndQueueSize(t *testing.T) {
	pool := newTestPool(t, Config{WorkerCount: 1})

	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.QueueSize(), 0)

	gate := make(chan struct{})
	testutil.AssertNoError(t, pool.SubmitFunc(func() { <-gate }))
	testutil.Eventually(t, func() bool { return pool.ActiveWorkers() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, pool.Submit(&TestTask{ID: i, Executed: new(int32)}))
	}
	testutil.AssertEqual(t, pool.QueueSize(), 3)

	close(gate)
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.QueueSize(), 0)
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(4))
}

func TestQueueWaitReported(t *testing.T) {
	results := make(chan Result, 2)
	pool := newTestPool(t, Config{
		WorkerCount:    1,
		OnTaskComplete: func(workerID int, result Result) { results <- result },
	})

	testutil.AssertNoError(t, pool.Submit(&TestTask{Duration: 30 * time.Millisecond, Executed: new(int32)}))
	testutil.AssertNoError(t, pool.Submit(&TestTask{Executed: new(int32)}))
	testutil.AssertNoError(t, pool.Shutdown())

	<-results
	second := <-results
	if second.QueueWait < 20*time.Millisecond {
		t.Fatalf("second task queue wait %v, expected it to wait behind the first", second.QueueWait)
	}
}

func TestMetricsPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	var handled []*TaskError
	var mu sync.Mutex

	pool, err := NewWithConfigAndMetrics(Config{
		WorkerCount: 2,
		Logger:      quietLogger,
		ErrorHandler: func(err *TaskError) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		},
	}, "test_pool", metrics.Config{Enabled: true, Registry: reg})
	testutil.AssertNoError(t, err)

	mp, ok := pool.(*MetricsPool)
	if !ok {
		t.Fatalf("expected *MetricsPool, got %T", pool)
	}
	testutil.AssertEqual(t, mp.MetricsEnabled(), true)

	failing := &TestTask{ShouldErr: true, Executed: new(int32)}
	testutil.AssertNoError(t, pool.Submit(&TestTask{Executed: new(int32)}))
	testutil.AssertNoError(t, pool.SubmitFunc(func() {}))
	testutil.AssertNoError(t, pool.Submit(failing))
	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldPanic: true, Executed: new(int32)}))
	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertError(t, pool.Submit(&TestTask{Executed: new(int32)}))

	values := gatherValues(t, reg)
	testutil.AssertEqual(t, values["gopool_threadpool_tasks_submitted_total"], float64(4))
	testutil.AssertEqual(t, values["gopool_threadpool_tasks_rejected_total"], float64(1))
	testutil.AssertEqual(t, values["gopool_threadpool_tasks_completed_total"], float64(2))
	testutil.AssertEqual(t, values["gopool_threadpool_tasks_failed_total"], float64(2))
	testutil.AssertEqual(t, values["gopool_threadpool_workers"], float64(2))
	testutil.AssertEqual(t, values["gopool_threadpool_queued_tasks"], float64(0))
	testutil.AssertEqual(t, values["gopool_threadpool_task_duration_seconds"], float64(4))

	// Error sink sees the submitted task, not the metrics wrapper.
	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, len(handled), 2)
	var sawFailing bool
	for _, h := range handled {
		if h.Task == Task(failing) {
			sawFailing = true
		}
	}
	testutil.AssertEqual(t, sawFailing, true)
}

func TestMetricsDisabledReturnsBasePool(t *testing.T) {
	pool, err := NewWithConfigAndMetrics(Config{WorkerCount: 1}, "plain", metrics.Config{Enabled: false})
	testutil.AssertNoError(t, err)
	defer pool.Shutdown()

	if _, ok := pool.(*MetricsPool); ok {
		t.Error("expected base pool when metrics are disabled")
	}
}

func TestNewWithMetricsInvalid(t *testing.T) {
	_, err := NewWithMetrics(0, "bad")
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)
}

// gatherValues flattens single-series metrics to name -> value. Histograms
// report their sample count.
func gatherValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	testutil.AssertNoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}
