package engine

import (
	"context"
	"fmt"

	"cmdfix/internal/llm"
	"cmdfix/internal/tools"

	"github.com/openai/openai-go/v3"
)

// StreamEngine is the event-pushed variant: each turn streams model
// output, delivering text deltas as they arrive; a turn ending in tool
// calls yields one batch, and Submit starts the continuation stream.
type StreamEngine struct {
	client   llm.Client
	model    string
	messages []openai.ChatCompletionMessageParamUnion
	toolDefs []openai.ChatCompletionToolUnionParam
	turn     chan streamItem
	pending  []tools.CallRequest
	done     bool
}

type streamItem struct {
	event Event
	err   error
}

// NewStreamEngine constructs the streaming adapter over an initial
// conversation and tool catalog.
func NewStreamEngine(client llm.Client, model string, messages []openai.ChatCompletionMessageParamUnion, toolDefs []openai.ChatCompletionToolUnionParam) *StreamEngine {
	return &StreamEngine{client: client, model: model, messages: messages, toolDefs: toolDefs}
}

// Next delivers one event at a time. Text deltas surface as soon as
// the stream produces them, before the turn has finished.
func (e *StreamEngine) Next(ctx context.Context) (Event, error) {
	if e.done {
		return Event{Kind: KindCompleted}, nil
	}
	if e.pending != nil {
		return Event{}, fmt.Errorf("tool-call batch outstanding; submit results first")
	}
	if e.turn == nil {
		e.turn = e.startTurn(ctx)
	}

	select {
	case <-ctx.Done():
		e.turn = nil
		return Event{}, ctx.Err()
	case item, ok := <-e.turn:
		if !ok {
			e.turn = nil
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			e.done = true
			return Event{Kind: KindCompleted}, nil
		}
		if item.err != nil {
			e.turn = nil
			return Event{}, item.err
		}
		switch item.event.Kind {
		case KindToolCalls:
			e.turn = nil
			e.pending = item.event.Requests
		case KindCompleted:
			e.turn = nil
			e.done = true
		}
		return item.event, nil
	}
}

// startTurn opens one model stream and forwards its output as events.
// The channel is unbuffered so each delta is handed over while the
// stream is still open.
func (e *StreamEngine) startTurn(ctx context.Context) chan streamItem {
	ch := make(chan streamItem)
	req := llm.Request{Model: e.model, Messages: e.messages, Tools: e.toolDefs}

	send := func(item streamItem) {
		select {
		case ch <- item:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)
		resp, err := e.client.Stream(ctx, req, func(delta string) {
			send(streamItem{event: Event{Kind: KindTextDelta, Delta: delta}})
		})
		if err != nil {
			send(streamItem{err: err})
			return
		}
		if len(resp.ToolCalls) > 0 {
			send(streamItem{event: Event{Kind: KindToolCalls, Requests: callRequests(resp.ToolCalls)}})
			return
		}
		send(streamItem{event: Event{Kind: KindCompleted}})
	}()
	return ch
}

func (e *StreamEngine) Submit(ctx context.Context, results []tools.CallResult) error {
	if err := verifyBatch(e.pending, results); err != nil {
		return err
	}
	e.messages = append(e.messages, assistantMessage(e.pending))
	e.messages = append(e.messages, resultMessages(results)...)
	e.pending = nil
	return nil
}
