// Package runner executes external commands on the local host, capturing
// exit status and output. It is the only suspension point in the engine:
// everything above it is deterministic bookkeeping.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the program to execute, resolved via PATH.
	Name string

	// Args are the program arguments.
	Args []string

	// Env are environment overrides appended to the inherited environment.
	Env map[string]string

	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Timeout bounds the process runtime. Zero means no per-command bound;
	// the context still applies.
	Timeout time.Duration

	// Stdin is fed to the process when non-empty.
	Stdin string
}

// Result is the outcome of a completed process. A non-zero exit status is
// not an error: callers decide what exit codes mean.
type Result struct {
	// ExitCode is the process exit status. -1 when the process did not
	// start or was killed.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// Duration is the wall-clock runtime.
	Duration time.Duration

	// TimedOut reports whether the per-command timeout elapsed.
	TimedOut bool
}

// Ok reports whether the process exited zero.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// StderrTail returns up to n trailing bytes of stderr, for failure reports.
func (r Result) StderrTail(n int) string {
	s := r.Stderr
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Runner executes commands. The engine's steps depend on this contract, not
// on os/exec, so tests substitute a fake.
type Runner interface {
	// Run executes the command and returns its result. The error is non-nil
	// only when the process could not be started or the context was
	// cancelled; command failure is expressed through Result.ExitCode.
	Run(ctx context.Context, cmd Command) (Result, error)

	// As returns a derived runner whose commands execute as the given system
	// user. The elevation is scoped per invocation: each process acquires
	// and releases the privilege context on its own, so a failed command
	// never leaks an elevated session.
	As(user string) Runner
}

// Local runs commands as child processes of the current process.
type Local struct {
	log  zerolog.Logger
	user string
}

// NewLocal creates a local command runner.
func NewLocal(log zerolog.Logger) *Local {
	return &Local{log: log}
}

// As implements Runner.
func (l *Local) As(user string) Runner {
	return &Local{log: l.log.With().Str("as_user", user).Logger(), user: user}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Name == "" {
		return Result{ExitCode: -1}, fmt.Errorf("command name is required")
	}

	name := cmd.Name
	args := cmd.Args
	if l.user != "" {
		// Non-interactive sudo: missing credentials fail fast instead of
		// hanging the run on a password prompt.
		args = append([]string{"-n", "-u", l.user, "--", name}, args...)
		name = "sudo"
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, name, args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		env := os.Environ()
		for k, v := range cmd.Env {
			env = append(env, k+"="+v)
		}
		c.Env = env
	}
	if cmd.Stdin != "" {
		c.Stdin = bytes.NewBufferString(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	l.log.Debug().Str("cmd", shellquote.Join(append([]string{name}, args...)...)).Msg("exec")

	start := time.Now()
	err := c.Run()
	result := Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case result.TimedOut:
			result.ExitCode = -1
		case errors.Is(ctx.Err(), context.Canceled):
			result.ExitCode = -1
			return result, ctx.Err()
		default:
			// Start failure: binary missing, permission denied on exec.
			result.ExitCode = -1
			return result, fmt.Errorf("starting %s: %w", cmd.Name, err)
		}
	}

	l.log.Debug().
		Int("exit", result.ExitCode).
		Dur("duration", result.Duration).
		Bool("timed_out", result.TimedOut).
		Msg("exec finished")

	return result, nil
}

// Output is a convenience wrapper running name with args and returning the
// result.
func Output(ctx context.Context, r Runner, name string, args ...string) (Result, error) {
	return r.Run(ctx, Command{Name: name, Args: args})
}
