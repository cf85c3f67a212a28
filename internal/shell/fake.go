package shell

import (
	"context"
	"fmt"
	"strings"
)

// FakeInput identifies an expected command
type FakeInput struct {
	Name string
	Args string
}

// FakeOutput is the canned response for a FakeInput. A non-zero ExitStatus
// makes the fake return an error.
type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

func NewFakeInput(name string, args ...string) FakeInput {
	return FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
	}
}

// NewFake returns a Runner that answers from expectations and fails on any
// command it was not told about.
func NewFake(expectations map[FakeInput]FakeOutput) Runner {
	return RunnerFunc(func(_ context.Context, cmd Command) (Result, error) {
		input := NewFakeInput(cmd.Name, cmd.Args...)
		output, ok := expectations[input]
		if !ok {
			return Result{ExitStatus: 1}, fmt.Errorf("unexpected input: %v", input)
		}

		result := Result{
			ExitStatus: output.ExitStatus,
			Stdout:     output.Stdout,
			Stderr:     output.Stderr,
		}
		if output.ExitStatus != 0 {
			return result, fmt.Errorf("%s exited with status %d: %s", cmd, output.ExitStatus, output.Stderr)
		}
		return result, nil
	})
}
