package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
	"github.com/vnykmshr/gopool/pkg/common/validation"
	"github.com/vnykmshr/gopool/pkg/scheduling/threadpool"
)

// Entry describes a scheduled task.
type Entry struct {
	ID       string
	Spec     string        // Cron expression, empty for time-based entries
	Next     time.Time     // Next time the task will be submitted
	Interval time.Duration // Zero for one-time and cron entries
	Runs     int64         // Number of times the task has been submitted
	Created  time.Time
}

// Scheduler submits tasks into a thread pool at fixed times, at fixed
// intervals, or on cron schedules. It never runs a task itself.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, task threadpool.Task, runAt time.Time) error
	ScheduleAfter(id string, task threadpool.Task, delay time.Duration) error
	ScheduleRepeating(id string, task threadpool.Task, interval time.Duration) error

	// Cron scheduling. Both 5-field and 6-field (leading seconds) expressions
	// are accepted, as are descriptors such as "@hourly" and "@every 10s".
	ScheduleCron(id string, cronExpr string, task threadpool.Task) error

	// Task management
	Cancel(id string) bool
	CancelAll()
	List() []Entry
	Next(id string) (time.Time, bool)

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// BackoffTask wraps a task with retry logic.
type BackoffTask struct {
	Task         threadpool.Task
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Execute implements threadpool.Task with exponential backoff. It occupies
// its worker while sleeping between attempts.
func (bt BackoffTask) Execute() error {
	var lastErr error
	delay := bt.InitialDelay

	for attempt := 0; attempt <= bt.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
		}

		lastErr = bt.Task.Execute()
		if lastErr == nil {
			return nil
		}

		// Double delay for next attempt
		delay *= 2
		if delay > bt.MaxDelay {
			delay = bt.MaxDelay
		}
	}

	return lastErr
}

// Config holds scheduler configuration.
type Config struct {
	// Pool receives due tasks. If nil, the scheduler creates a 4-worker pool
	// and shuts it down on Stop.
	Pool threadpool.Pool

	Location     *time.Location // For cron scheduling
	TickInterval time.Duration  // How often to check for ready tasks (default: 50ms)
	MaxTasks     int            // Maximum number of scheduled tasks (default: 10000)

	// Name is attached to every log record as the "scheduler" attribute.
	Name string

	// Logger receives submission failures. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnTrigger is called each time a due task is handed to the pool.
	OnTrigger func(entry Entry)

	// OnSubmitError is called when the pool rejects a due task. If the pool
	// has shut down the entry is also cancelled.
	OnSubmitError func(entry Entry, err error)
}

type scheduledTask struct {
	id           string
	task         threadpool.Task
	spec         string
	runAt        time.Time
	interval     time.Duration
	cronSchedule cron.Schedule
	runs         int64
	created      time.Time
}

func (t *scheduledTask) entry() Entry {
	return Entry{
		ID:       t.id,
		Spec:     t.spec,
		Next:     t.runAt,
		Interval: t.interval,
		Runs:     t.runs,
		Created:  t.created,
	}
}

type scheduler struct {
	config       Config
	pool         threadpool.Pool
	ownPool      bool
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	cronParser   cron.Parser
	logger       *slog.Logger

	mu      sync.RWMutex
	tasks   map[string]*scheduledTask
	done    chan struct{}
	loopWg  sync.WaitGroup
	running bool
	stopped bool
}

// New creates a scheduler with default configuration.
func New() (Scheduler, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (Scheduler, error) {
	if err := validation.ValidateNonNegativeInt("scheduler", "MaxTasks", cfg.MaxTasks); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name != "" {
		logger = logger.With("scheduler", cfg.Name)
	}

	pool := cfg.Pool
	ownPool := false
	if pool == nil {
		var err error
		pool, err = threadpool.NewWithConfig(threadpool.Config{WorkerCount: 4, Name: cfg.Name, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxTasks := cfg.MaxTasks
	if maxTasks == 0 {
		maxTasks = 10000
	}

	return &scheduler{
		config:       cfg,
		pool:         pool,
		ownPool:      ownPool,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		cronParser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		logger: logger,
		tasks:  make(map[string]*scheduledTask),
		done:   make(chan struct{}),
	}, nil
}

// ValidateCronExpression reports whether expr would be accepted by ScheduleCron.
func ValidateCronExpression(expr string) error {
	_, err := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(expr)
	return err
}

func validateEntry(id string, task threadpool.Task) error {
	if err := validation.ValidateNotEmpty("scheduler", "id", id); err != nil {
		return err
	}
	if len(id) > 255 {
		return gferrors.NewValidationError("scheduler", "id", id, "too long").
			WithHint("use at most 255 characters")
	}
	if task == nil {
		return gferrors.ErrNilTask
	}
	return nil
}

// add registers t under its ID. The caller must not hold s.mu.
func (s *scheduler) add(t *scheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("cannot schedule task %q: %w", t.id, gferrors.ErrClosed)
	}
	if _, exists := s.tasks[t.id]; exists {
		return fmt.Errorf("task with ID %q already exists, use a different ID or cancel the existing task first", t.id)
	}
	if len(s.tasks) >= s.maxTasks {
		return fmt.Errorf("cannot schedule task: maximum number of tasks (%d) reached", s.maxTasks)
	}

	s.tasks[t.id] = t
	return nil
}

func (s *scheduler) Schedule(id string, task threadpool.Task, runAt time.Time) error {
	if err := validateEntry(id, task); err != nil {
		return err
	}
	if runAt.IsZero() {
		return gferrors.NewValidationError("scheduler", "runAt", runAt, "cannot be zero")
	}

	return s.add(&scheduledTask{
		id:      id,
		task:    task,
		runAt:   runAt,
		created: time.Now(),
	})
}

func (s *scheduler) ScheduleAfter(id string, task threadpool.Task, delay time.Duration) error {
	return s.Schedule(id, task, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, task threadpool.Task, interval time.Duration) error {
	if err := validateEntry(id, task); err != nil {
		return err
	}
	if interval <= 0 {
		return gferrors.NewValidationError("scheduler", "interval", interval, "must be positive")
	}

	now := time.Now()
	return s.add(&scheduledTask{
		id:       id,
		task:     task,
		runAt:    now,
		interval: interval,
		created:  now,
	})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task threadpool.Task) error {
	if err := validateEntry(id, task); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("scheduler", "cronExpr", cronExpr); err != nil {
		return err
	}

	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return gferrors.NewValidationError("scheduler", "cronExpr", cronExpr, err.Error())
	}

	return s.add(&scheduledTask{
		id:           id,
		task:         task,
		spec:         cronExpr,
		runAt:        schedule.Next(time.Now().In(s.location)),
		cronSchedule: schedule,
		created:      time.Now(),
	})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

func (s *scheduler) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.tasks))
	for _, t := range s.tasks {
		entries = append(entries, t.entry())
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Next.Equal(entries[j].Next) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Next.Before(entries[j].Next)
	})

	return entries
}

func (s *scheduler) Next(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return t.runAt, true
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("cannot start scheduler: %w", gferrors.ErrClosed)
	}
	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}

	s.running = true
	s.loopWg.Add(1)
	go s.run(time.NewTicker(s.tickInterval))
	return nil
}

// Stop halts the tick loop. The returned channel is closed once the loop has
// exited and, if the scheduler created its own pool, that pool has drained.
func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		s.running = false
		close(s.done)
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.loopWg.Wait()
		if s.ownPool {
			_ = s.pool.Shutdown()
		}
	}()

	return stopped
}

func (s *scheduler) run(ticker *time.Ticker) {
	defer s.loopWg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.processReadyTasks(now)
		}
	}
}

type dueTask struct {
	task  threadpool.Task
	entry Entry
}

func (s *scheduler) processReadyTasks(now time.Time) {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}

	var ready []dueTask
	for id, t := range s.tasks {
		if now.Before(t.runAt) {
			continue
		}

		t.runs++
		ready = append(ready, dueTask{task: t.task, entry: t.entry()})

		switch {
		case t.interval > 0:
			t.runAt = now.Add(t.interval)
		case t.cronSchedule != nil:
			t.runAt = t.cronSchedule.Next(now.In(s.location))
		default:
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()

	// Submit outside the lock; the pool never blocks on capacity.
	for _, due := range ready {
		if err := s.pool.Submit(due.task); err != nil {
			if gferrors.IsShutdown(err) {
				// A closed pool rejects every later run too.
				s.Cancel(due.entry.ID)
				s.logger.Warn("pool is shut down, cancelling scheduled task", "id", due.entry.ID)
			} else {
				s.logger.Warn("failed to submit scheduled task", "id", due.entry.ID, "error", err)
			}
			if s.config.OnSubmitError != nil {
				s.config.OnSubmitError(due.entry, err)
			}
			continue
		}
		if s.config.OnTrigger != nil {
			s.config.OnTrigger(due.entry)
		}
	}
}
