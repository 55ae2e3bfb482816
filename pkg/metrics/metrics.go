package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name unless Config.Namespace is set.
const DefaultNamespace = "gopool"

// Registry holds all metric instances for gopool components.
type Registry struct {
	// Thread Pool Metrics
	PoolSize          *prometheus.GaugeVec
	PoolActive        *prometheus.GaugeVec
	PoolQueued        *prometheus.GaugeVec
	TasksSubmitted    *prometheus.CounterVec
	TasksRejected     *prometheus.CounterVec
	TasksCompleted    *prometheus.CounterVec
	TasksFailed       *prometheus.CounterVec
	TaskQueueWait     *prometheus.HistogramVec
	TaskExecutionTime *prometheus.HistogramVec

	// Semaphore Metrics
	SemaphoreAvailable    *prometheus.GaugeVec
	SemaphoreWaiting      *prometheus.GaugeVec
	SemaphoreAcquired     *prometheus.CounterVec
	SemaphoreWaitDuration *prometheus.HistogramVec

	// Scheduler Metrics
	SchedulerTriggers     *prometheus.CounterVec
	SchedulerSubmitErrors *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by gopool components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryFromConfig(Config{Registry: reg})
}

// For returns the registry a component should record into for cfg. Configs
// that point at the default registerer with the default namespace and no
// labels share DefaultRegistry. Other configs get one Registry per distinct
// registerer, namespace and label set, so several components can be
// instrumented against the same Prometheus registry.
func For(cfg Config) *Registry {
	defaultReg := cfg.Registry == nil || cfg.Registry == prometheus.DefaultRegisterer
	defaultNS := cfg.Namespace == "" || cfg.Namespace == DefaultNamespace
	if defaultReg && defaultNS && len(cfg.Labels) == 0 {
		return DefaultRegistry
	}

	key := registryKey{reg: cfg.Registry, namespace: cfg.Namespace, labels: labelKey(cfg.Labels)}
	if key.namespace == "" {
		key.namespace = DefaultNamespace
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()

	if r, ok := registries[key]; ok {
		return r
	}
	r := NewRegistryFromConfig(cfg)
	registries[key] = r
	return r
}

type registryKey struct {
	reg       prometheus.Registerer
	namespace string
	labels    string
}

var (
	registriesMu sync.Mutex
	registries   = map[registryKey]*Registry{}
)

func labelKey(labels prometheus.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(labels[name])
		b.WriteByte(',')
	}
	return b.String()
}

// NewRegistryFromConfig creates a registry honoring the namespace and constant
// labels in cfg. A nil cfg.Registry registers with prometheus.DefaultRegisterer.
func NewRegistryFromConfig(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(cfg.Labels) > 0 {
		reg = prometheus.WrapRegistererWith(cfg.Labels, reg)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	factory := promauto.With(reg)
	poolLabels := []string{"pool_name"}
	semLabels := []string{"semaphore_name"}
	schedLabels := []string{"scheduler_name"}

	return &Registry{
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "workers",
				Help:      "Number of worker goroutines in the pool",
			},
			poolLabels,
		),

		PoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "active_workers",
				Help:      "Number of workers currently running a task",
			},
			poolLabels,
		),

		PoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "queued_tasks",
				Help:      "Number of tasks waiting in the queue",
			},
			poolLabels,
		),

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "tasks_submitted_total",
				Help:      "Total number of tasks accepted by Submit",
			},
			poolLabels,
		),

		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "tasks_rejected_total",
				Help:      "Total number of tasks rejected by Submit",
			},
			poolLabels,
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks that finished without error",
			},
			poolLabels,
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that returned an error or panicked",
			},
			poolLabels,
		),

		TaskQueueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "task_queue_wait_seconds",
				Help:      "Time between submission and the start of execution",
				Buckets:   prometheus.DefBuckets,
			},
			poolLabels,
		),

		TaskExecutionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "threadpool",
				Name:      "task_duration_seconds",
				Help:      "Time spent executing tasks",
				Buckets:   prometheus.DefBuckets,
			},
			poolLabels,
		),

		SemaphoreAvailable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "semaphore",
				Name:      "available",
				Help:      "Number of permits currently available",
			},
			semLabels,
		),

		SemaphoreWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "semaphore",
				Name:      "waiting",
				Help:      "Number of callers blocked in Acquire",
			},
			semLabels,
		),

		SemaphoreAcquired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "semaphore",
				Name:      "acquired_total",
				Help:      "Total number of permits acquired",
			},
			semLabels,
		),

		SemaphoreWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "semaphore",
				Name:      "wait_duration_seconds",
				Help:      "Time spent blocked in Acquire",
				Buckets:   prometheus.DefBuckets,
			},
			semLabels,
		),

		SchedulerTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduler",
				Name:      "triggers_total",
				Help:      "Total number of schedule firings",
			},
			schedLabels,
		),

		SchedulerSubmitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduler",
				Name:      "submit_errors_total",
				Help:      "Total number of firings the pool refused",
			},
			schedLabels,
		),
	}
}
