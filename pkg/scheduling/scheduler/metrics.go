package scheduler

import (
	"github.com/vnykmshr/gopool/pkg/metrics"
)

// NewWithMetrics creates a scheduler that counts triggers and rejected
// submissions in a registry of its own.
func NewWithMetrics(name string) (Scheduler, error) {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	config, _ := metrics.Isolated()
	return NewWithConfigAndMetrics(Config{Name: name}, name, config)
}

// NewWithConfigAndMetrics creates a scheduler with custom config and metrics.
// The caller's OnTrigger and OnSubmitError callbacks still run.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Scheduler, error) {
	if !metricsConfig.Enabled {
		return NewWithConfig(config)
	}

	registry := metrics.For(metricsConfig)

	// Wrap the config callbacks to add metrics
	originalConfig := config
	config.OnTrigger = func(entry Entry) {
		registry.SchedulerTriggers.WithLabelValues(name).Inc()
		if originalConfig.OnTrigger != nil {
			originalConfig.OnTrigger(entry)
		}
	}
	config.OnSubmitError = func(entry Entry, err error) {
		registry.SchedulerSubmitErrors.WithLabelValues(name).Inc()
		if originalConfig.OnSubmitError != nil {
			originalConfig.OnSubmitError(entry, err)
		}
	}

	return NewWithConfig(config)
}
