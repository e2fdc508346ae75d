package command_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harkd/hark/internal/command"
)

func TestExecutor_Run(t *testing.T) {
	t.Parallel()

	e := command.NewExecutor(command.WithWorkDir(t.TempDir()))
	res := e.Run(context.Background(), "echo hello")
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
	if res.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestExecutor_NonZeroExit(t *testing.T) {
	t.Parallel()

	e := command.NewExecutor(command.WithWorkDir(t.TempDir()))
	res := e.Run(context.Background(), "exit 3")
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Err != nil {
		t.Errorf("non-zero exit should not set Err, got %v", res.Err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	t.Parallel()

	e := command.NewExecutor(
		command.WithWorkDir(t.TempDir()),
		command.WithExecTimeout(100*time.Millisecond),
	)
	res := e.Run(context.Background(), "sleep 5")
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.Err == nil {
		t.Error("timeout should set Err")
	}
	if res.Duration >= 5*time.Second {
		t.Errorf("process not killed at deadline, ran %v", res.Duration)
	}
}

func TestExecutor_WorkDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := command.NewExecutor(command.WithWorkDir(dir))
	res := e.Run(context.Background(), "pwd")
	if strings.TrimSpace(res.Stdout) != dir {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), dir)
	}
}

func TestExecutor_DispatchDoesNotBlock(t *testing.T) {
	t.Parallel()

	e := command.NewExecutor(command.WithWorkDir(t.TempDir()))
	results := make(chan command.Result, 1)

	started := time.Now()
	e.Dispatch(context.Background(), "sleep 0.2 && echo done", func(r command.Result) {
		results <- r
	})
	if elapsed := time.Since(started); elapsed > 100*time.Millisecond {
		t.Errorf("Dispatch blocked for %v", elapsed)
	}

	select {
	case res := <-results:
		if strings.TrimSpace(res.Stdout) != "done" {
			t.Errorf("Stdout = %q, want done", res.Stdout)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatched command never completed")
	}
}
