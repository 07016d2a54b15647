package orchestrator

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Runner executes an external binary with arguments. Arguments are passed
// as argv; nothing ever reaches a shell.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands on the host with a per-invocation timeout
type ExecRunner struct {
	// Timeout bounds each command execution (default: 60 seconds)
	Timeout time.Duration
}

// NewExecRunner creates a runner with the given command timeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExecRunner{Timeout: timeout}
}

// Run executes the command and captures both output streams
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
