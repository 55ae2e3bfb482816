package threadpool

import (
	"sync/atomic"
	"time"

	"github.com/vnykmshr/gopool/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

// NewWithMetrics creates a new thread pool with metrics enabled.
func NewWithMetrics(workerCount int, name string) (Pool, error) {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	config, _ := metrics.Isolated()
	return NewWithConfigAndMetrics(Config{WorkerCount: workerCount, Name: name}, name, config)
}

// NewWithConfigAndMetrics creates a new thread pool with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Pool, error) {
	basePool, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}

	if !metricsConfig.Enabled {
		return basePool, nil
	}

	registry := metrics.For(metricsConfig)

	mp := &MetricsPool{
		pool: basePool,
		name: name,
	}
	mp.registry.Store(registry)
	mp.enabled.Store(true)

	mp.updateMetrics()

	return mp, nil
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled.Load() {
		return
	}

	reg := mp.registry.Load()
	reg.PoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	reg.PoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	reg.PoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit wraps the task to record queue wait and execution metrics.
func (mp *MetricsPool) Submit(task Task) error {
	if task == nil || !mp.enabled.Load() {
		return mp.pool.Submit(task)
	}

	wrapped := &metricsTask{
		original:   task,
		pool:       mp,
		submitTime: time.Now(),
	}

	err := mp.pool.Submit(wrapped)

	reg := mp.registry.Load()
	if err != nil {
		reg.TasksRejected.WithLabelValues(mp.name).Inc()
	} else {
		reg.TasksSubmitted.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()

	return err
}

// SubmitFunc submits a zero-argument function with no result.
func (mp *MetricsPool) SubmitFunc(fn func()) error {
	if fn == nil {
		return mp.pool.SubmitFunc(fn)
	}
	return mp.Submit(Func(fn))
}

// metricsTask wraps a Task to collect execution metrics.
type metricsTask struct {
	original   Task
	pool       *MetricsPool
	submitTime time.Time
}

// Unwrap returns the submitted task.
func (mt *metricsTask) Unwrap() Task {
	return mt.original
}

// Execute runs the original task and records metrics. A panic still counts
// as a failure before it propagates to the worker.
func (mt *metricsTask) Execute() (err error) {
	start := time.Now()
	mp := mt.pool

	if mp.enabled.Load() {
		mp.registry.Load().TaskQueueWait.WithLabelValues(mp.name).Observe(start.Sub(mt.submitTime).Seconds())
		mp.updateMetrics()
	}

	failed := true
	defer func() {
		if !mp.enabled.Load() {
			return
		}

		reg := mp.registry.Load()
		reg.TaskExecutionTime.WithLabelValues(mp.name).Observe(time.Since(start).Seconds())
		if failed {
			reg.TasksFailed.WithLabelValues(mp.name).Inc()
		} else {
			reg.TasksCompleted.WithLabelValues(mp.name).Inc()
		}
	}()

	err = mt.original.Execute()
	failed = err != nil
	return err
}

// Shutdown drains the pool and refreshes the state gauges once it has stopped.
func (mp *MetricsPool) Shutdown() error {
	err := mp.pool.Shutdown()
	mp.updateMetrics()
	return err
}

// Done returns a channel closed after all workers have exited.
func (mp *MetricsPool) Done() <-chan struct{} {
	return mp.pool.Done()
}

// Size returns the number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	queueSize := mp.pool.QueueSize()

	if mp.enabled.Load() {
		mp.registry.Load().PoolQueued.WithLabelValues(mp.name).Set(float64(queueSize))
	}

	return queueSize
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) ActiveWorkers() int {
	activeWorkers := mp.pool.ActiveWorkers()

	if mp.enabled.Load() {
		mp.registry.Load().PoolActive.WithLabelValues(mp.name).Set(float64(activeWorkers))
	}

	return activeWorkers
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}

// TotalFailed returns the total number of tasks that failed.
func (mp *MetricsPool) TotalFailed() int64 {
	return mp.pool.TotalFailed()
}

// EnableMetrics enables metrics collection.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		mp.registry.Store(metrics.For(config))
	} else if mp.registry.Load() == nil {
		mp.registry.Store(metrics.DefaultRegistry)
	}
	mp.enabled.Store(config.Enabled)

	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	return mp.enabled.Load()
}

var _ metrics.Instrumentable = (*MetricsPool)(nil)
