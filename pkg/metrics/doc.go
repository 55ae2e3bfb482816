// Package metrics provides Prometheus instrumentation for gopool components.
//
// # Overview
//
// The metrics package provides instrumentation for:
//   - Thread pools (size, active workers, queued tasks, submitted, rejected,
//     completed and failed tasks, queue wait and execution time)
//   - Semaphores (available permits, blocked acquirers, acquisitions, wait time)
//   - Schedulers (triggers, submissions refused by the pool)
//
// # Quick Start
//
// Enable metrics by using the metrics-enabled constructors:
//
//	// Thread pool with metrics
//	pool, _ := threadpool.NewWithMetrics(8, "ingest")
//
//	// Semaphore with metrics
//	sem, _ := semaphore.NewWithMetrics(3, "db_conns")
//
//	// Scheduler with metrics
//	s, _ := scheduler.NewWithMetrics("jobs")
//
// Each of these records into a fresh registry so two components with the
// same name never collide. To expose several components on one endpoint,
// share a registry explicitly:
//
//	cfg, reg := metrics.Isolated()
//	pool, _ := threadpool.NewWithConfigAndMetrics(threadpool.Config{WorkerCount: 8}, "ingest", cfg)
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Passing the same Config to every component is safe: For hands out one
// Registry per Prometheus registry, namespace and label set, and returns
// DefaultRegistry for configs that point at prometheus.DefaultRegisterer.
//
// # Available Metrics
//
// Thread pool, labelled pool_name:
//   - gopool_threadpool_workers
//   - gopool_threadpool_active_workers
//   - gopool_threadpool_queued_tasks
//   - gopool_threadpool_tasks_submitted_total
//   - gopool_threadpool_tasks_rejected_total
//   - gopool_threadpool_tasks_completed_total
//   - gopool_threadpool_tasks_failed_total
//   - gopool_threadpool_task_queue_wait_seconds
//   - gopool_threadpool_task_duration_seconds
//
// Semaphore, labelled semaphore_name:
//   - gopool_semaphore_available
//   - gopool_semaphore_waiting
//   - gopool_semaphore_acquired_total
//   - gopool_semaphore_wait_duration_seconds
//
// Scheduler, labelled scheduler_name:
//   - gopool_scheduler_triggers_total
//   - gopool_scheduler_submit_errors_total
//
// Config.Namespace replaces the "gopool" prefix and Config.Labels adds
// constant labels to every series.
package metrics
