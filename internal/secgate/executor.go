package secgate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vk/sessionkit/internal/ctxlog"
)

// CommandExecutor spawns whitelisted commands directly, never through a
// shell. Timeouts terminate the whole process group, so children spawned by
// a setup script do not outlive it.
type CommandExecutor struct {
	whitelist *CommandWhitelist
}

// NewCommandExecutor builds an executor gated by the given whitelist.
func NewCommandExecutor(whitelist *CommandWhitelist) *CommandExecutor {
	return &CommandExecutor{whitelist: whitelist}
}

// ExecRequest describes one gated subprocess run.
type ExecRequest struct {
	Argv []string
	// Dir is the working directory, normally the session root.
	Dir string
	// Environment is merged over a minimal base environment (PATH, HOME,
	// LANG); the parent environment is not inherited wholesale.
	Environment map[string]string
	Timeout     time.Duration
}

// ExecResult captures a finished (or killed) subprocess. A non-zero exit is
// not an error at this layer; callers decide via Success.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success reports whether the command exited zero without timing out.
func (r *ExecResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// baseEnvKeys are the only parent environment variables a subprocess
// inherits implicitly.
var baseEnvKeys = []string{"PATH", "HOME", "LANG", "TMPDIR"}

// Execute re-checks the whitelist (defense in depth: validation already
// checked it), then runs the argv with the given timeout. It returns a
// *SecurityError if the whitelist check fails and an ordinary error if the
// process cannot be spawned; a non-zero exit is reported via the result.
func (e *CommandExecutor) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	logger := ctxlog.FromContext(ctx)

	if err := e.whitelist.Check(req.Argv); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(req.Environment)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Kill the whole process group on cancellation, not just the leader.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Executing setup command.", "argv", req.Argv, "dir", req.Dir, "timeout", timeout)
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if result.TimedOut {
			result.ExitCode = -1
			return result, nil
		}
		return nil, fmt.Errorf("spawning %v: %w", req.Argv, runErr)
	}

	return result, nil
}

// buildEnv merges the request environment over the minimal base set, in
// sorted key order for deterministic argv logging.
func buildEnv(extra map[string]string) []string {
	merged := make(map[string]string, len(baseEnvKeys)+len(extra))
	for _, key := range baseEnvKeys {
		if v, ok := os.LookupEnv(key); ok {
			merged[key] = v
		}
	}
	for k, v := range extra {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
