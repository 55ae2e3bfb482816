package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Example_basicUsage demonstrates recording into a registry of its own.
func Example_basicUsage() {
	testRegistry := prometheus.NewRegistry()
	registry := NewRegistry(testRegistry)

	registry.PoolSize.WithLabelValues("ingest").Set(4)
	registry.TasksSubmitted.WithLabelValues("ingest").Add(10)
	registry.TasksCompleted.WithLabelValues("ingest").Add(9)
	registry.TasksFailed.WithLabelValues("ingest").Add(1)

	families, _ := testRegistry.Gather()
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}

	// Output:
	// gopool_threadpool_tasks_completed_total
	// gopool_threadpool_tasks_failed_total
	// gopool_threadpool_tasks_submitted_total
	// gopool_threadpool_workers
}

// Example_customNamespace demonstrates renaming and labelling every series.
func Example_customNamespace() {
	customRegistry := prometheus.NewRegistry()

	config := Config{
		Enabled:   true,
		Registry:  customRegistry,
		Namespace: "billing",
		Labels:    prometheus.Labels{"region": "eu-west-1"},
	}

	registry := For(config)
	registry.SemaphoreAcquired.WithLabelValues("db_conns").Inc()

	families, _ := customRegistry.Gather()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Println(mf.GetName(), len(m.GetLabel()), m.GetCounter().GetValue())
		}
	}

	// Output: billing_semaphore_acquired_total 2 1
}

// Example_configuration demonstrates different metrics configurations.
func Example_configuration() {
	// Default configuration
	defaultConfig := DefaultConfig()
	fmt.Printf("Default enabled: %v\n", defaultConfig.Enabled)
	fmt.Printf("Default namespace: %s\n", defaultConfig.Namespace)
	fmt.Printf("Shares default registry: %v\n", For(defaultConfig) == DefaultRegistry)

	// Isolated configuration
	isolated, _ := Isolated()
	fmt.Printf("Isolated shares default registry: %v\n", For(isolated) == DefaultRegistry)

	// Output:
	// Default enabled: true
	// Default namespace: gopool
	// Shares default registry: true
	// Isolated shares default registry: false
}
