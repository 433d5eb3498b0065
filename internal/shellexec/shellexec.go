package shellexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandResult captures one shell invocation.
type CommandResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// Shell returns the interpreter used for command lines, preferring the
// user's login shell.
func Shell() string {
	if sh := os.Getenv("SHELL"); strings.TrimSpace(sh) != "" {
		return sh
	}
	return "/bin/sh"
}

// Run executes a command line through the shell with captured output.
// Non-zero exits are reported via ExitCode, not as an error; the error
// return covers spawn failures only.
func Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, Shell(), "-c", command)
	cmd.Env = os.Environ()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := CommandResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		exitErr := &exec.ExitError{}
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = 1
		return result, err
	}
	return result, nil
}

// Quote wraps a value in single quotes so the shell treats it as one
// literal argument. Embedded single quotes are closed, escaped, and
// reopened, matching POSIX sh semantics.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	if isShellSafe(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

func isShellSafe(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ':' || r == '@' || r == '%' || r == '+' || r == '=' || r == ',':
		default:
			return false
		}
	}
	return true
}
