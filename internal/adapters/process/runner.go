// Package process runs executor commands on the local machine.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/example/harness/internal/ports/secondary"
)

// waitDelay bounds how long Run waits for output pipes after a kill.
const waitDelay = 2 * time.Second

// Runner implements secondary.ProcessRunner with os/exec.
type Runner struct{}

// NewRunner creates a process runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run starts the command, feeds Stdin, and waits for it to exit.
// Cancelling ctx kills the process; the result then carries the exit code
// the kill produced alongside ctx.Err().
func (r *Runner) Run(ctx context.Context, spec secondary.ProcessSpec) (*secondary.ProcessResult, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("no command given")
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = waitDelay
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	if spec.Tee != nil {
		cmd.Stdout = io.MultiWriter(&stdout, spec.Tee)
		cmd.Stderr = io.MultiWriter(&stderr, spec.Tee)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	result := &secondary.ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", spec.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%s interrupted: %w", spec.Command, ctxErr)
		}
	}
	return result, nil
}

// Ensure Runner implements the interface
var _ secondary.ProcessRunner = (*Runner)(nil)
