package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vnykmshr/gopool/internal/config"
	"github.com/vnykmshr/gopool/internal/console"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configFile string
	stdout     io.Writer
	stderr     io.Writer

	cfg    *config.Config
	logger *slog.Logger
	out    *console.Sink
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}
	defaults := config.New()

	rootCmd := &cobra.Command{
		Use:           "gopool",
		Short:         "Run demo workloads on a fixed-size thread pool",
		Long:          `gopool submits simulated tasks that log and sleep to a fixed-size thread pool, optionally bounded by a local or Redis-backed semaphore and driven by a cron schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a YAML configuration file")
	flags.String(config.KeyLogLevel, defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, defaults.LogFormat, "Log format (text, json)")
	flags.String(config.KeyMetricsAddr, defaults.MetricsAddr, "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Int(config.KeyWorkers, defaults.Workers, "Number of pool workers")
	flags.Duration(config.KeyTaskDuration, defaults.TaskDuration, "How long each demo task sleeps")
	flags.Int(config.KeyPermits, defaults.Permits, "Tasks allowed to hold the shared resource at once (0 = unlimited)")
	flags.String(config.KeyRedisAddr, defaults.RedisAddr, "Share permits across processes through this Redis")
	flags.String(config.KeyRedisKey, defaults.RedisKey, "Redis key for the shared semaphore")

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newScheduleCommand(a))

	return rootCmd
}

// load resolves configuration for cmd and builds the logger and output sink.
func (a *app) load(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.out = console.New(a.stdout)
	return nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}
