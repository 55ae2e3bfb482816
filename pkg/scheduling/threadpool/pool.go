package threadpool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/gopool/pkg/common/validation"
)

// Task represents a unit of work that can be executed by a worker.
// The pool never inspects a task beyond calling Execute once.
type Task interface {
	// Execute runs the task. A returned error is reported through the
	// pool's error sink; it never stops the worker.
	Execute() error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func() error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute() error {
	return f()
}

// Func adapts a zero-argument function with no result into a Task.
func Func(fn func()) Task {
	return TaskFunc(func() error {
		fn()
		return nil
	})
}

// Result describes one finished task. It is delivered to Config.OnTaskComplete.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is the error returned by the task, or a *TaskError if it panicked
	Error error

	// QueueWait is how long the task waited in the queue before a worker took it
	QueueWait time.Duration

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// TaskError is reported to Config.ErrorHandler for every task that returned
// an error or panicked.
type TaskError struct {
	WorkerID int
	Task     Task
	Err      error

	// Panic holds the recovered value when the task panicked.
	Panic interface{}
	Stack []byte
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.WorkerID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the task panicked rather than returning an error.
func (e *TaskError) Panicked() bool {
	return e.Panic != nil
}

// Pool runs submitted tasks on a fixed set of worker goroutines.
type Pool interface {
	// Submit appends a task to the tail of the queue and wakes one idle worker.
	// It never blocks on capacity. It returns ErrNilTask for a nil task and
	// ErrPoolShutdown once Shutdown has been called.
	Submit(task Task) error

	// SubmitFunc submits a zero-argument function with no result.
	SubmitFunc(fn func()) error

	// Shutdown stops accepting tasks, lets workers drain everything already
	// queued, and blocks until every worker has exited. Tasks already running
	// are never interrupted. A second call waits for the same termination and
	// returns ErrAlreadyShutdown. Calling Shutdown from inside a task deadlocks.
	Shutdown() error

	// Done returns a channel that is closed once all workers have exited.
	Done() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks accepted by Submit.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks that finished, failed or not.
	TotalCompleted() int64

	// TotalFailed returns the number of finished tasks that returned an error or panicked.
	TotalFailed() int64
}

// Config holds configuration options for creating a thread pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// Name is attached to every log record as the "pool" attribute.
	Name string

	// Logger receives worker lifecycle and task failure records.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// ErrorHandler is called for every task that returns an error or panics.
	// It runs on the worker goroutine; a panic inside it is recovered and logged.
	ErrorHandler func(err *TaskError)

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)
}

// queuedTask is a task together with the time it entered the queue.
type queuedTask struct {
	task     Task
	enqueued time.Time
}

// threadPool implements the Pool interface.
type threadPool struct {
	config Config
	logger *slog.Logger

	// mu guards queue and stopping together; cond waits on "non-empty or stopping".
	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskQueue
	stopping bool

	shutdownOnce atomic.Bool
	workerWg     sync.WaitGroup
	done         chan struct{}

	activeWorkers  atomic.Int32
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *threadPool
}

// New creates a pool with the given number of workers and default configuration.
func New(workerCount int) (Pool, error) {
	return NewWithConfig(Config{WorkerCount: workerCount})
}

// MustNew is like New but panics on an invalid worker count.
func MustNew(workerCount int) Pool {
	pool, err := New(workerCount)
	if err != nil {
		panic("invalid thread pool configuration: " + err.Error())
	}
	return pool
}

// NewWithConfig creates a pool and starts config.WorkerCount workers before returning.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("threadpool", "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Name != "" {
		logger = logger.With("pool", config.Name)
	}

	pool := &threadPool{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
	pool.cond = sync.NewCond(&pool.mu)

	pool.workerWg.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		w := &worker{id: i, pool: pool}
		go w.run()
	}

	logger.Debug("thread pool started", "workers", config.WorkerCount)
	return pool, nil
}
