package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cmdfix/internal/shellexec"
	"cmdfix/internal/util"
)

// ListDirectoryTool runs ls against a requested path.
type ListDirectoryTool struct {
	optionEnum []string
}

// NewListDirectoryTool constructs the list_directory capability.
func NewListDirectoryTool() *ListDirectoryTool {
	return &ListDirectoryTool{optionEnum: []string{"-la", "--help"}}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List files and directories in a specified path."
}

func (t *ListDirectoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The directory path to list.",
			},
			"options": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": t.optionEnum},
				"description": "Options to modify the behavior of the ls command.",
			},
		},
		"required": []string{"path"},
	}
}

type listDirectoryArgs struct {
	Path    string   `json:"path"`
	Options []string `json:"options"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error) {
	var input listDirectoryArgs
	if err := unmarshalArgs(args, &input); err != nil {
		return "", err
	}
	if strings.TrimSpace(input.Path) == "" {
		return "", errors.New("Missing 'path' argument.")
	}
	if err := validateOptions(input.Options, t.optionEnum); err != nil {
		return "", err
	}
	command := buildCommand("ls", input.Options, shellexec.Quote(input.Path))
	return runBounded(ctx, command, meta)
}

// FileContentsTool cats a requested file.
type FileContentsTool struct{}

// NewFileContentsTool constructs the display_file_contents capability.
func NewFileContentsTool() *FileContentsTool { return &FileContentsTool{} }

func (t *FileContentsTool) Name() string { return "display_file_contents" }

func (t *FileContentsTool) Description() string {
	return "Display the contents of a specified file."
}

func (t *FileContentsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The path to the file to display.",
			},
		},
		"required": []string{"file_path"},
	}
}

type fileContentsArgs struct {
	FilePath string `json:"file_path"`
}

func (t *FileContentsTool) Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error) {
	var input fileContentsArgs
	if err := unmarshalArgs(args, &input); err != nil {
		return "", err
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return "", errors.New("Missing 'file_path' argument.")
	}
	return runBounded(ctx, "cat "+shellexec.Quote(input.FilePath), meta)
}

func unmarshalArgs(args json.RawMessage, target any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, target); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}

func validateOptions(options []string, enum []string) error {
	for _, opt := range options {
		allowed := false
		for _, candidate := range enum {
			if opt == candidate {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("option %q is not recognized; allowed: %s", opt, strings.Join(enum, ", "))
		}
	}
	return nil
}

func buildCommand(binary string, options []string, quotedArgs ...string) string {
	parts := append([]string{binary}, options...)
	parts = append(parts, quotedArgs...)
	return strings.Join(parts, " ")
}

// runBounded executes the constructed command line and captures its
// combined output. Spawn failures and non-zero exits become output
// text so the engine can see and react to them.
func runBounded(ctx context.Context, command string, meta Meta) (string, error) {
	res, err := shellexec.Run(ctx, command, meta.Timeout)
	output := res.Stdout + res.Stderr
	if err != nil {
		output += err.Error()
	}
	return util.BoundOutput(output, meta.MaxOutputBytes), nil
}
