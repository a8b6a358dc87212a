// Package runner executes external commands and captures their output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds the captured output of a finished command.
type Result struct {
	// Command is the argument vector (or remote command line) that was run.
	Command []string

	Stdout   string
	Stderr   string
	ExitCode int
}

// Check returns an *ExecutionError when the command exited non-zero.
func (r *Result) Check() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExecutionError{
		Command:  r.Command,
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
	}
}

// ExecutionError represents a strict command that exited non-zero.
type ExecutionError struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, strings.Join(e.Command, " "))
	if s := strings.TrimSpace(e.Stdout); s != "" {
		msg += fmt.Sprintf("\nstdout:\n%s", s)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += fmt.Sprintf("\nstderr:\n%s", s)
	}
	return msg
}

// PrerequisiteError reports a required local binary that is not in PATH.
type PrerequisiteError struct {
	Name string
	Hint string
}

func (e *PrerequisiteError) Error() string {
	msg := fmt.Sprintf("'%s' not found in PATH", e.Name)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// LookPath verifies that every named binary can be found in PATH.
func LookPath(hint string, names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return &PrerequisiteError{Name: name, Hint: hint}
		}
	}
	return nil
}

// Run executes argv[0] with the remaining arguments, feeding input on stdin
// when it is non-nil. With strict set, a non-zero exit is returned as an
// *ExecutionError together with the result.
func Run(ctx context.Context, argv []string, input []byte, strict bool) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	err := cmd.Run()

	result := &Result{
		Command: argv,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Command failed to start
			return nil, fmt.Errorf("failed to execute %s: %w", argv[0], err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if strict {
		if err := result.Check(); err != nil {
			return result, err
		}
	}

	return result, nil
}
