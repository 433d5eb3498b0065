package engine

import (
	"context"
	"fmt"

	"cmdfix/internal/llm"
	"cmdfix/internal/tools"

	"github.com/openai/openai-go/v3"
)

// TwoCallEngine is the poll/request-response variant: one request
// carries history plus the full tool catalog; if the response requests
// tools, results are appended to history and a second request yields
// the final answer. At most one batch, two round-trips total.
type TwoCallEngine struct {
	client   llm.Client
	model    string
	messages []openai.ChatCompletionMessageParamUnion
	toolDefs []openai.ChatCompletionToolUnionParam
	queue    []Event
	pending  []tools.CallRequest
	phase    int // 0 initial request, 1 final request, 2 done
}

// NewTwoCallEngine constructs the two-call adapter.
func NewTwoCallEngine(client llm.Client, model string, messages []openai.ChatCompletionMessageParamUnion, toolDefs []openai.ChatCompletionToolUnionParam) *TwoCallEngine {
	return &TwoCallEngine{client: client, model: model, messages: messages, toolDefs: toolDefs}
}

func (e *TwoCallEngine) Next(ctx context.Context) (Event, error) {
	if len(e.queue) > 0 {
		return e.pop(), nil
	}
	if e.pending != nil {
		return Event{}, fmt.Errorf("tool-call batch outstanding; submit results first")
	}

	switch e.phase {
	case 0:
		resp, err := e.client.Create(ctx, llm.Request{Model: e.model, Messages: e.messages, Tools: e.toolDefs})
		if err != nil {
			return Event{}, err
		}
		if len(resp.ToolCalls) > 0 {
			e.pending = callRequests(resp.ToolCalls)
			e.phase = 1
			e.queue = append(e.queue, Event{Kind: KindToolCalls, Requests: e.pending})
			return e.pop(), nil
		}
		e.finish(resp.Content)
		return e.pop(), nil
	case 1:
		// Final round-trip; no tools are offered, the answer must be
		// produced from the collected results.
		resp, err := e.client.Create(ctx, llm.Request{Model: e.model, Messages: e.messages})
		if err != nil {
			return Event{}, err
		}
		e.finish(resp.Content)
		return e.pop(), nil
	default:
		return Event{Kind: KindCompleted}, nil
	}
}

func (e *TwoCallEngine) Submit(ctx context.Context, results []tools.CallResult) error {
	if err := verifyBatch(e.pending, results); err != nil {
		return err
	}
	e.messages = append(e.messages, assistantMessage(e.pending))
	e.messages = append(e.messages, resultMessages(results)...)
	e.pending = nil
	return nil
}

func (e *TwoCallEngine) finish(content string) {
	e.phase = 2
	if content != "" {
		e.queue = append(e.queue, Event{Kind: KindTextDelta, Delta: content})
	}
	e.queue = append(e.queue, Event{Kind: KindCompleted})
}

func (e *TwoCallEngine) pop() Event {
	event := e.queue[0]
	e.queue = e.queue[1:]
	return event
}
