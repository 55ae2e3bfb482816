// Command gopool runs demo workloads on a thread pool.
//
//	gopool run --workers 4 --tasks 20 --task-duration 500ms --permits 2
//	gopool schedule --schedule "*/5 * * * * *" --run-for 1m
//
// Every flag can also be set with a GOPOOL_* environment variable or in a
// YAML file passed with --config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
