// Package engine adapts two structurally different reasoning-engine
// protocols (event-pushed streaming and poll/two-call request-response)
// behind one interface the run controller is written against.
package engine

import (
	"context"
	"fmt"

	"cmdfix/internal/llm"
	"cmdfix/internal/tools"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared/constant"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusCreated        Status = "created"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// IsTerminal reports whether no further transition leaves the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Kind enumerates the events an engine can deliver.
type Kind string

const (
	// KindTextDelta carries one suggestion text fragment.
	KindTextDelta Kind = "text_delta"
	// KindToolCalls carries one complete tool-call batch. The batch
	// must be answered via Submit before Next is called again.
	KindToolCalls Kind = "tool_calls"
	// KindCompleted marks the final event of a successful run.
	KindCompleted Kind = "completed"
)

// Event is one observation from the engine, delivered in order.
type Event struct {
	Kind     Kind
	Delta    string
	Requests []tools.CallRequest
}

// Engine drives one conversation run. Implementations are not safe for
// concurrent use; a run has a single logical flow.
type Engine interface {
	// Next blocks until the next event is available. An error aborts
	// the run; the controller maps it to a terminal status.
	Next(ctx context.Context) (Event, error)
	// Submit answers the outstanding tool-call batch. Every request of
	// the batch must have exactly one result.
	Submit(ctx context.Context, results []tools.CallResult) error
}

// verifyBatch checks result completeness against the outstanding batch:
// one result per request, call ids in bijection.
func verifyBatch(pending []tools.CallRequest, results []tools.CallResult) error {
	if pending == nil {
		return fmt.Errorf("no outstanding tool-call batch")
	}
	if len(results) != len(pending) {
		return fmt.Errorf("incomplete batch: %d results for %d requests", len(results), len(pending))
	}
	want := make(map[string]bool, len(pending))
	for _, req := range pending {
		want[req.ID] = true
	}
	for _, res := range results {
		if !want[res.CallID] {
			return fmt.Errorf("result for unknown call id %q", res.CallID)
		}
		delete(want, res.CallID)
	}
	return nil
}

func callRequests(calls []llm.ToolCall) []tools.CallRequest {
	reqs := make([]tools.CallRequest, 0, len(calls))
	for _, call := range calls {
		reqs = append(reqs, tools.CallRequest{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	}
	return reqs
}

// assistantMessage rebuilds the assistant turn that requested the batch
// so results can be appended to history with matching call ids.
func assistantMessage(pending []tools.CallRequest) openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(pending))
	for _, req := range pending {
		params = append(params, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: req.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      req.Name,
					Arguments: string(req.Arguments),
				},
				Type: constant.Function("function"),
			},
		})
	}
	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: params}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func resultMessages(results []tools.CallResult) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(results))
	for _, res := range results {
		output := res.Output
		if res.IsError {
			output = "Error: " + output
		}
		msgs = append(msgs, openai.ToolMessage(output, res.CallID))
	}
	return msgs
}
