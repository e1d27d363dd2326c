package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single rebuild command.
const DefaultTimeout = 30 * time.Minute

// waitDelay is how long a timed-out command's pipes may stay open after it
// has been killed. Grandchildren holding stdout would otherwise block Wait.
const waitDelay = 5 * time.Second

// RunResult is the outcome of one subprocess.
type RunResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// Err is set when the command could not be started or did not exit
	// cleanly for a reason other than a non-zero exit code.
	Err      error
	TimedOut bool
	Duration time.Duration
}

// OK reports whether the command exited with status 0 in time.
func (r RunResult) OK() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Runner spawns a command and waits for it.
type Runner interface {
	Run(ctx context.Context, command, dir string, timeout time.Duration) RunResult
}

// ShellRunner runs commands through `sh -c` so templates may use pipes,
// redirection and environment expansion.
type ShellRunner struct {
	Shell string
}

var _ Runner = ShellRunner{}

// Run implements Runner.
func (s ShellRunner) Run(ctx context.Context, command, dir string, timeout time.Duration) RunResult {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		return res
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		res.Err = err
	}
	if err != nil && ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	return res
}
