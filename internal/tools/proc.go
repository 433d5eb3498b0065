package tools

import (
	"context"
	"encoding/json"
)

// WorkingDirectoryTool runs pwd.
type WorkingDirectoryTool struct{}

// NewWorkingDirectoryTool constructs the print_working_directory capability.
func NewWorkingDirectoryTool() *WorkingDirectoryTool { return &WorkingDirectoryTool{} }

func (t *WorkingDirectoryTool) Name() string { return "print_working_directory" }

func (t *WorkingDirectoryTool) Description() string {
	return "Print the current working directory."
}

func (t *WorkingDirectoryTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *WorkingDirectoryTool) Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error) {
	return runBounded(ctx, "pwd", meta)
}

// ListProcessesTool runs ps.
type ListProcessesTool struct {
	optionEnum []string
}

// NewListProcessesTool constructs the list_processes capability.
func NewListProcessesTool() *ListProcessesTool {
	return &ListProcessesTool{optionEnum: []string{"aux", "--help"}}
}

func (t *ListProcessesTool) Name() string { return "list_processes" }

func (t *ListProcessesTool) Description() string {
	return "List currently running processes."
}

func (t *ListProcessesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"options": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": t.optionEnum},
				"description": "Options to modify the behavior of the ps command.",
			},
		},
	}
}

type listProcessesArgs struct {
	Options []string `json:"options"`
}

func (t *ListProcessesTool) Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error) {
	var input listProcessesArgs
	if err := unmarshalArgs(args, &input); err != nil {
		return "", err
	}
	if err := validateOptions(input.Options, t.optionEnum); err != nil {
		return "", err
	}
	return runBounded(ctx, buildCommand("ps", input.Options), meta)
}
