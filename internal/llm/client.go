package llm

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"
)

// ToolCall represents a model tool call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Response represents a model response. ToolCalls is populated for
// both buffered and streamed completions.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Request is a simplified chat completion request.
type Request struct {
	Model    string
	Messages []openai.ChatCompletionMessageParamUnion
	Tools    []openai.ChatCompletionToolUnionParam
}

// Client is an LLM client interface. Stream invokes onDelta for each
// content fragment in arrival order before returning the full response.
type Client interface {
	Create(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, onDelta func(string)) (Response, error)
}
