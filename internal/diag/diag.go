// Package diag collects the diagnostic context forwarded to the
// reasoning engine after a command fails.
package diag

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cmdfix/internal/shellexec"
	"cmdfix/internal/util"
)

const probeTimeout = 5 * time.Second

// CommandError is the structured record of one failed invocation. It
// is serialized as text into the first conversation turn.
type CommandError struct {
	Timestamp            string            `json:"timestamp"`
	Command              string            `json:"command"`
	ExitStatus           int               `json:"exit_status"`
	Stdout               string            `json:"stdout"`
	Stderr               string            `json:"stderr"`
	WorkingDirectory     string            `json:"working_directory"`
	Shell                string            `json:"shell"`
	Path                 string            `json:"PATH"`
	SystemInformation    string            `json:"system_information"`
	OSRelease            string            `json:"os_release"`
	CommandBinaryDetails string            `json:"command_binary_details"`
	CommandVersion       string            `json:"command_version"`
	EnvironmentVariables map[string]string `json:"environment_variables"`
}

// Gather assembles the error context for a failed command. Captured
// output is redacted and size-bounded before it can reach the model.
func Gather(ctx context.Context, command string, result shellexec.CommandResult, maxBytes int) CommandError {
	cwd, _ := os.Getwd()
	details := CommandError{
		Timestamp:            time.Now().Format(time.RFC3339),
		Command:              command,
		ExitStatus:           result.ExitCode,
		Stdout:               bound(result.Stdout, maxBytes),
		Stderr:               bound(result.Stderr, maxBytes),
		WorkingDirectory:     cwd,
		Shell:                os.Getenv("SHELL"),
		Path:                 os.Getenv("PATH"),
		SystemInformation:    probe(ctx, "uname -a", "System information not available"),
		OSRelease:            osRelease(maxBytes),
		EnvironmentVariables: environMap(),
	}

	binary := firstToken(command)
	if binary != "" {
		if resolved, err := exec.LookPath(binary); err == nil {
			details.CommandBinaryDetails = resolved
			details.CommandVersion = probe(ctx, shellexec.Quote(binary)+" --version", "Version information not available")
		} else {
			details.CommandBinaryDetails = "Command not found in PATH"
			details.CommandVersion = "Version information not available"
		}
	}
	return details
}

// JSON serializes the record for the first conversation turn.
func (e CommandError) JSON() string {
	payload, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(payload)
}

// DefaultLastErrorPath is where the most recent error record lands.
func DefaultLastErrorPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cmdfix_last_error.json")
}

// WriteLast persists the record for later inspection.
func WriteLast(e CommandError, path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(e.JSON()), 0o600)
}

func probe(ctx context.Context, command, fallback string) string {
	res, err := shellexec.Run(ctx, command, probeTimeout)
	if err != nil || res.ExitCode != 0 {
		return fallback
	}
	return strings.TrimSpace(res.Stdout + res.Stderr)
}

func osRelease(maxBytes int) string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "OS release information not available"
	}
	return bound(string(data), maxBytes)
}

func environMap() map[string]string {
	env := map[string]string{}
	for _, entry := range os.Environ() {
		if idx := strings.Index(entry, "="); idx > 0 {
			env[entry[:idx]] = entry[idx+1:]
		}
	}
	return util.RedactEnv(env)
}

// firstToken extracts the binary name from a command line, honoring
// shell quoting so a quoted program path stays one token.
func firstToken(command string) string {
	var token strings.Builder
	var quote rune
	escaped := false
	started := false
	for _, r := range command {
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				token.WriteRune(r)
			}
		case escaped:
			token.WriteRune(r)
			escaped = false
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				token.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			started = true
		case r == '\'' || r == '"':
			quote = r
			started = true
		case r == ' ' || r == '\t':
			if started {
				return token.String()
			}
		default:
			token.WriteRune(r)
			started = true
		}
	}
	return token.String()
}

func bound(text string, maxBytes int) string {
	return util.BoundOutput(util.RedactSecrets(text), maxBytes)
}
