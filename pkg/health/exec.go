package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newshub/stevedore/pkg/runtime"
)

// ExecChecker performs health checks by running a command inside a
// container through the runtime's exec interface
type ExecChecker struct {
	// Runtime executes the command
	Runtime runtime.Runtime

	// Container is the name of the container to exec into
	Container string

	// Command is the command to execute (e.g., a mongosh ping)
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(rt runtime.Runtime, container string, command []string) *ExecChecker {
	return &ExecChecker{
		Runtime:   rt,
		Container: container,
		Command:   command,
		Timeout:   10 * time.Second,
	}
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	out, err := e.Runtime.Exec(execCtx, e.Container, e.Command)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("command %v in %s failed: %v", e.Command, e.Container, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	message := fmt.Sprintf("command %v in %s succeeded", e.Command, e.Container)
	if output := strings.TrimSpace(string(out)); output != "" {
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s: %s", message, output)
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}
