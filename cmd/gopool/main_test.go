package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/gopool/internal/config"
	"github.com/vnykmshr/gopool/internal/console"
	"github.com/vnykmshr/gopool/internal/testutil"
	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
	"github.com/vnykmshr/gopool/pkg/metrics"
	"github.com/vnykmshr/gopool/pkg/ratelimit/semaphore"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	// Keep the Redis test address from switching the demo to shared permits.
	t.Setenv("GOPOOL_REDIS_ADDR", "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	stdout, stderr, err := execute(t, "run",
		"--tasks", "5",
		"--workers", "2",
		"--task-duration", "1ms",
		"--permits", "1",
		"--log-level", "debug")
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, strings.Count(stdout, "started"), 5)
	testutil.AssertEqual(t, strings.Count(stdout, "finished after 1ms"), 5)
	for _, want := range []string{"task 1 [", "task 5 ["} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}

	for _, want := range []string{`msg="submitting tasks"`, `msg="pool drained"`, "completed=5", "failed=0", `msg="worker ready"`} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestRunCommandJSONLogs(t *testing.T) {
	_, stderr, err := execute(t, "run", "--tasks", "1", "--task-duration", "0s", "--log-format", "json")
	testutil.AssertNoError(t, err)

	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("not a JSON log line: %q", line)
		}
	}
}

func TestRunCommandInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "run", "--workers", "0")
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	_, _, err = execute(t, "run", "--log-level", "loud")
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)
}

func TestRunCommandConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gopool.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("tasks: 3\ntask-duration: 1ms\nworkers: 1\n"), 0o600))

	stdout, _, err := execute(t, "run", "--config", path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.Count(stdout, "finished"), 3)

	// Flags win over the file.
	stdout, _, err = execute(t, "run", "--config", path, "--tasks", "2")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.Count(stdout, "finished"), 2)
}

func TestScheduleCommand(t *testing.T) {
	stdout, stderr, err := execute(t, "schedule",
		"--schedule", "* * * * * *",
		"--run-for", "1500ms",
		"--task-duration", "1ms")
	testutil.AssertNoError(t, err)

	if !strings.Contains(stdout, "task 1 [") {
		t.Errorf("expected at least one scheduled task:\n%s", stdout)
	}
	for _, want := range []string{`msg="scheduler started"`, `msg="scheduler stopped"`} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestScheduleCommandInvalidExpression(t *testing.T) {
	_, _, err := execute(t, "schedule", "--schedule", "every tuesday")
	testutil.AssertError(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	testutil.AssertNoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	out := buf.String()
	testutil.AssertEqual(t, strings.Contains(out, "hidden"), false)
	testutil.AssertEqual(t, strings.Contains(out, `"msg":"shown"`), true)

	_, err = newLogger(&buf, "nope", "text")
	testutil.AssertError(t, err)
}

func TestDemoTask(t *testing.T) {
	out := testutil.NewMockWriter()
	task := newDemoTask(context.Background(), 7, time.Millisecond, console.New(out), nil)

	testutil.AssertNoError(t, task.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	testutil.AssertEqual(t, len(lines), 2)
	testutil.AssertEqual(t, strings.HasPrefix(lines[0], "task 7 ["+task.id+"] started"), true)
	testutil.AssertEqual(t, strings.HasPrefix(lines[1], "task 7 ["+task.id+"] finished"), true)
}

func TestDemoTaskInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := testutil.NewMockWriter()
	task := newDemoTask(ctx, 1, time.Hour, console.New(out), nil)

	testutil.AssertNoError(t, task.Execute())
	testutil.AssertEqual(t, strings.Contains(out.String(), "interrupted"), true)
}

func TestDemoTaskInterruptedWaitingForPermit(t *testing.T) {
	sem := semaphore.MustNew(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := testutil.NewMockWriter()
	task := newDemoTask(ctx, 3, time.Hour, console.New(out), ctxPermits{sem: sem})

	testutil.AssertNoError(t, task.Execute())
	testutil.AssertEqual(t, strings.Contains(out.String(), "interrupted before start"), true)
	testutil.AssertEqual(t, strings.Contains(out.String(), "started"), false)
}

// ctxPermits gives up waiting for a permit when ctx ends.
type ctxPermits struct {
	sem semaphore.Semaphore
}

func (p ctxPermits) acquire(ctx context.Context) error {
	for !p.sem.TryAcquire() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (p ctxPermits) release(context.Context) error {
	p.sem.Release()
	return nil
}

func (p ctxPermits) close() error { return nil }

func TestDemoTaskPermitFailureIsReported(t *testing.T) {
	out := testutil.NewMockWriter()
	task := newDemoTask(context.Background(), 4, time.Millisecond, console.New(out), failingPermits{})

	err := task.Execute()
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, strings.Contains(err.Error(), "acquire permit"), true)
}

type failingPermits struct{}

func (failingPermits) acquire(context.Context) error { return errors.New("backend unavailable") }
func (failingPermits) release(context.Context) error { return nil }
func (failingPermits) close() error                  { return nil }

func TestScheduleCommandInterruptIsQuiet(t *testing.T) {
	_, stderr, err := execute(t, "schedule",
		"--schedule", "* * * * * *",
		"--run-for", "1200ms",
		"--task-duration", "1h")
	testutil.AssertNoError(t, err)

	if strings.Contains(stderr, `msg="task failed"`) {
		t.Errorf("interrupted tasks were logged as failures:\n%s", stderr)
	}
}

func TestDemoTaskHoldsPermit(t *testing.T) {
	sem := semaphore.MustNew(1)
	p := localPermits{sem: sem}

	var during int
	out := console.New(testutil.NewMockWriter())
	task := newDemoTask(context.Background(), 1, 0, out, p)

	recorder := &recordingPermits{permits: p, onAcquire: func() { during = sem.Count() }}
	task.p = recorder

	testutil.AssertNoError(t, task.Execute())
	testutil.AssertEqual(t, during, 0)
	testutil.AssertEqual(t, sem.Count(), 1)
}

type recordingPermits struct {
	permits
	onAcquire func()
}

func (p *recordingPermits) acquire(ctx context.Context) error {
	err := p.permits.acquire(ctx)
	p.onAcquire()
	return err
}

func TestOpenPermitsDisabled(t *testing.T) {
	p, err := openPermits(context.Background(), &config.Config{Permits: 0}, nil, metrics.Config{})
	testutil.AssertNoError(t, err)
	if p != nil {
		t.Fatalf("expected no permits, got %T", p)
	}
}
