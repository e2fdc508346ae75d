package command

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultExecTimeout is the hard execution deadline applied when no timeout
// is configured.
const DefaultExecTimeout = 30 * time.Second

// Result is the outcome of one command execution.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// TimedOut is set when the process was killed at the deadline.
	TimedOut bool

	// Err records a failure to launch or a timeout; a non-zero exit with
	// clean process handling leaves Err nil.
	Err error
}

// Executor runs approved commands as child processes under the invoking
// user's own privileges: a shell invocation with a fixed working directory
// and a hard deadline after which the process is killed. Safe for
// concurrent use.
type Executor struct {
	timeout time.Duration
	workDir string
}

// ExecOption is a functional option for configuring an [Executor].
type ExecOption func(*Executor)

// WithExecTimeout sets the hard per-command deadline. Default: 30 s.
func WithExecTimeout(d time.Duration) ExecOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithWorkDir sets the working directory for executed commands.
// Default: the user's home directory.
func WithWorkDir(dir string) ExecOption {
	return func(e *Executor) {
		if dir != "" {
			e.workDir = dir
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecOption) *Executor {
	e := &Executor{timeout: DefaultExecTimeout}
	if home, err := os.UserHomeDir(); err == nil {
		e.workDir = home
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes the command and blocks until it exits or the deadline kills
// it. Every attempt and result is logged.
func (e *Executor) Run(ctx context.Context, command string) Result {
	slog.Info("executing command", "command", command, "workdir", e.workDir)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = e.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	res := Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = errors.New("command: execution timed out")
		slog.Error("command timed out",
			"command", command, "timeout", e.timeout, "duration", res.Duration)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			slog.Error("command failed",
				"command", command, "exit_code", res.ExitCode,
				"stderr", res.Stderr, "duration", res.Duration)
		} else {
			res.ExitCode = -1
			res.Err = err
			slog.Error("command launch failed", "command", command, "error", err)
		}
	default:
		slog.Info("command executed",
			"command", command, "exit_code", 0, "duration", res.Duration)
		if res.Stdout != "" {
			slog.Debug("command output", "stdout", res.Stdout)
		}
	}
	return res
}

// Dispatch runs the command on its own goroutine so the audio path never
// waits on process execution. done, when non-nil, receives the result.
func (e *Executor) Dispatch(ctx context.Context, command string, done func(Result)) {
	go func() {
		res := e.Run(ctx, command)
		if done != nil {
			done(res)
		}
	}()
}
