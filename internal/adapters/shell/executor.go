// Package shell runs recipe lines through the host's command interpreter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/zerr"
)

const interpreter = "/bin/sh"

// Executor implements ports.Executor using os/exec. The recipe's command
// semantics are opaque: each line goes to the interpreter unmodified and only
// the exit status and output streams come back.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run executes lines strictly in sequence inside dir, stopping at the first
// nonzero exit. Output is accumulated across lines. Each command is echoed
// before it runs, as make does.
func (e *Executor) Run(ctx context.Context, dir string, lines []string) (*domain.RecipeResult, error) {
	var stdout, stderr bytes.Buffer

	for _, line := range lines {
		if e.logger != nil {
			e.logger.Info(line)
		}

		cmd := exec.CommandContext(ctx, interpreter, "-c", line) //nolint:gosec // user provided recipe
		cmd.Dir = dir
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return &domain.RecipeResult{
					ExitCode: exitErr.ExitCode(),
					Stdout:   stdout.String(),
					Stderr:   stderr.String(),
				}, nil
			}
			return nil, zerr.Wrap(err, "failed to spawn command")
		}
	}

	return &domain.RecipeResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
