package events

import "time"

// Type represents an emitted event type.
type Type string

const (
	RunStarted       Type = "RunStarted"
	ToolCallStarted  Type = "ToolCallStarted"
	ToolCallFinished Type = "ToolCallFinished"
	ToolCallFailed   Type = "ToolCallFailed"
	SuggestionDelta  Type = "SuggestionDelta"
	SuggestionReady  Type = "SuggestionReady"
	RunFinished      Type = "RunFinished"
	RunError         Type = "RunError"
)

// Event is the common envelope for renderer events.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// RunStartedPayload is emitted at the beginning of a run.
type RunStartedPayload struct {
	Version   string    `json:"version"`
	Command   string    `json:"command"`
	Model     string    `json:"model"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// ToolCallStartedPayload marks a tool-call batch entry start.
type ToolCallStartedPayload struct {
	ToolName  string    `json:"tool_name"`
	CallID    string    `json:"call_id"`
	Input     any       `json:"input"`
	StartedAt time.Time `json:"started_at"`
}

// ToolCallFinishedPayload marks tool call end.
type ToolCallFinishedPayload struct {
	ToolName   string `json:"tool_name"`
	CallID     string `json:"call_id"`
	Status     string `json:"status"`
	Preview    string `json:"preview"`
	ByteCount  int    `json:"byte_count"`
	DurationMs int64  `json:"duration_ms"`
}

// SuggestionDeltaPayload is streamed as suggestion text arrives.
type SuggestionDeltaPayload struct {
	Delta string `json:"delta"`
}

// SuggestionReadyPayload carries the accumulated suggestion.
type SuggestionReadyPayload struct {
	Suggestion string `json:"suggestion"`
}

// RunFinishedPayload closes the run.
type RunFinishedPayload struct {
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunErrorPayload records a run error.
type RunErrorPayload struct {
	Message string `json:"message"`
}
