package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Meta provides execution limits to tools.
type Meta struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// CallRequest is an engine-issued request to invoke one capability.
// The ID is opaque and assigned by the engine, unique within a run.
type CallRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// CallResult answers exactly one CallRequest. Output carries combined
// stdout+stderr for executed commands or an error message.
type CallResult struct {
	CallID  string
	Output  string
	IsError bool
}

// Tool is one allow-listed local capability. Schema doubles as the
// catalog advertised to the engine and the enforcement contract: a tool
// must validate arguments against the same values Schema returns.
// Execute returns combined captured output; the error return is
// reserved for argument validation, before any process is spawned.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error)
}
