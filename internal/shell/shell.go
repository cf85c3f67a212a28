// Package shell runs external commands such as git
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Command describes one external command invocation
type Command struct {
	Dir  string
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Runner runs a command to completion and captures its output. A non-zero
// exit status is reported as an error along with the Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (fn RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return fn(ctx, cmd)
}

// Exec runs commands with os/exec
type Exec struct{}

var _ Runner = Exec{}

func (Exec) Run(ctx context.Context, c Command) (Result, error) {
	logger := zerolog.Ctx(ctx)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug().Str("command", c.String()).Msg("Running command")

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitStatus = exitErr.ExitCode()
		} else {
			result.ExitStatus = 1
		}
		return result, fmt.Errorf("failed to run %s: %w: %s", c, err, strings.TrimSpace(result.Stderr))
	}

	return result, nil
}
