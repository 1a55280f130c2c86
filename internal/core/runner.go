package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// CommandRunner is an interface for running commands, allowing for testing with mocks
type CommandRunner interface {
	CommandContext(ctx context.Context, name string, arg ...string) Command
}

// Command is an interface for exec.Cmd, allowing for testing with mocks
type Command interface {
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.ReadCloser, error)
	StderrPipe() (io.ReadCloser, error)
	SetStdin(io.Reader)
	SetDir(string)
	Start() error
	Wait() error
}

// execCommand wraps exec.Cmd to implement Command interface
type execCommand struct {
	*exec.Cmd
}

func (e *execCommand) SetStdin(r io.Reader) {
	e.Stdin = r
}

func (e *execCommand) SetDir(dir string) {
	e.Dir = dir
}

// Explicitly forward methods from *exec.Cmd to satisfy the Command interface
// (even though they're already available through embedding, this makes it explicit for the linter)
func (e *execCommand) Start() error {
	return e.Cmd.Start()
}

func (e *execCommand) Wait() error {
	return e.Cmd.Wait()
}

func (e *execCommand) StdinPipe() (io.WriteCloser, error) {
	return e.Cmd.StdinPipe()
}

func (e *execCommand) StdoutPipe() (io.ReadCloser, error) {
	return e.Cmd.StdoutPipe()
}

func (e *execCommand) StderrPipe() (io.ReadCloser, error) {
	return e.Cmd.StderrPipe()
}

// Interface guard for execCommand
var _ Command = &execCommand{}

// execCommandRunner wraps exec.CommandContext to implement CommandRunner
type execCommandRunner struct{}

func (e *execCommandRunner) CommandContext(ctx context.Context, name string, arg ...string) Command {
	return &execCommand{Cmd: exec.CommandContext(ctx, name, arg...)}
}

// Interface guard for execCommandRunner
var _ CommandRunner = &execCommandRunner{}

// ProcessRunner executes the processes backing cli and script contracts.
type ProcessRunner struct {
	timeout       time.Duration
	clock         clockwork.Clock
	commandRunner CommandRunner
}

// NewProcessRunner creates a new process runner with a real clock
func NewProcessRunner(timeoutSeconds int) *ProcessRunner {
	return NewProcessRunnerWithClock(timeoutSeconds, clockwork.NewRealClock())
}

// NewProcessRunnerWithClock creates a new process runner with a custom clock
// This is useful for testing with a fake clock
func NewProcessRunnerWithClock(timeoutSeconds int, clock clockwork.Clock) *ProcessRunner {
	return &ProcessRunner{
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		clock:         clock,
		commandRunner: &execCommandRunner{},
	}
}

// NewProcessRunnerWithClockAndRunner creates a new process runner with a custom clock and command runner
// This is useful for testing with a fake clock and mocked command execution
func NewProcessRunnerWithClockAndRunner(timeoutSeconds int, clock clockwork.Clock, runner CommandRunner) *ProcessRunner {
	return &ProcessRunner{
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		clock:         clock,
		commandRunner: runner,
	}
}

// ProcessResult represents the result of one process execution
type ProcessResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Error    error  `json:"-"`
}

// ProcessSpec describes one process to execute.
type ProcessSpec struct {
	// Path to the executable or script.
	Path string
	// Interpreter to run Path with. Empty for binary executables.
	Interpreter string
	// Args are appended after Path.
	Args []string
	// Stdin is passed to the process when non-empty.
	Stdin string
	// Dir is the working directory. Empty inherits the server's.
	Dir string
}

// Run executes one process and captures its output.
// The supplied context is combined with the runner's timeout, so a
// canceled parent call also cancels the child process.
func (r *ProcessRunner) Run(ctx context.Context, spec ProcessSpec) (*ProcessResult, error) {
	// Create context with timeout using the clock
	execCtx, cancel := clockwork.WithTimeout(ctx, r.clock, r.timeout)
	defer cancel()

	// Build command
	var cmd Command
	if spec.Interpreter != "" {
		// Script with interpreter
		cmdArgs := []string{spec.Path}
		cmdArgs = append(cmdArgs, spec.Args...)
		cmd = r.commandRunner.CommandContext(execCtx, spec.Interpreter, cmdArgs...)
	} else {
		// Binary executable
		cmd = r.commandRunner.CommandContext(execCtx, spec.Path, spec.Args...)
	}

	if spec.Dir != "" {
		cmd.SetDir(spec.Dir)
	}

	// Set up stdin
	if spec.Stdin != "" {
		cmd.SetStdin(strings.NewReader(spec.Stdin))
	}

	// Capture stdout and stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	// Start command
	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	// Read output
	var stdoutBuf, stderrBuf strings.Builder
	done := make(chan error, 2)

	go func() {
		_, copyErr := io.Copy(&stdoutBuf, stdout)
		done <- copyErr
	}()

	go func() {
		_, copyErr := io.Copy(&stderrBuf, stderr)
		done <- copyErr
	}()

	// Wait for output reading to complete
	<-done
	<-done

	// Wait for command to finish
	err = cmd.Wait()

	result := &ProcessResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: 0,
	}

	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			result.ExitCode = exitError.ExitCode()
		} else {
			result.Error = err
			return result, err
		}
	}

	// Check for context timeout
	if execCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Errorf("process timed out after %v", r.timeout)
		return result, result.Error
	}

	return result, nil
}
