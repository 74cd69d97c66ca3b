// Package xcrun shells out to the Xcode command line tools. Runner is the
// seam every external invocation goes through, so tests can substitute
// canned results for the real binaries.
package xcrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds invocations that do not set their own.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when an invocation exceeds its deadline.
var ErrTimeout = errors.New("command timed out")

// Request describes one command invocation.
type Request struct {
	Command string
	Args    []string
	Timeout time.Duration
	Dir     string
}

// Result carries the outcome of one invocation. A nonzero exit code is
// not an error; callers that care inspect ExitCode.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// execRunner is the host implementation of Runner.
type execRunner struct {
	log zerolog.Logger
}

// NewRunner returns the Runner that shells out on the host.
func NewRunner(logger zerolog.Logger) Runner {
	return &execRunner{log: logger}
}

func (r *execRunner) Run(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, fmt.Errorf("%s %s: %w", req.Command, strings.Join(req.Args, " "), ErrTimeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("run %s: %w", req.Command, err)
		}
	}

	r.log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Tool invocation finished")

	return result, nil
}

// Xcrun invokes `xcrun <tool> <args...>` through r.
func Xcrun(ctx context.Context, r Runner, timeout time.Duration, tool string, args ...string) (Result, error) {
	return r.Run(ctx, Request{
		Command: "xcrun",
		Args:    append([]string{tool}, args...),
		Timeout: timeout,
	})
}
