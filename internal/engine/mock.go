package engine

import (
	"context"
	"fmt"

	"cmdfix/internal/tools"
)

// ScriptedEngine replays a fixed event sequence for controller tests.
type ScriptedEngine struct {
	Script    []Event
	Submitted [][]tools.CallResult
	NextErr   error // returned once the script is exhausted, if set

	pending []tools.CallRequest
	idx     int
}

func (e *ScriptedEngine) Next(ctx context.Context) (Event, error) {
	if e.pending != nil {
		return Event{}, fmt.Errorf("tool-call batch outstanding; submit results first")
	}
	if e.idx >= len(e.Script) {
		if e.NextErr != nil {
			return Event{}, e.NextErr
		}
		return Event{Kind: KindCompleted}, nil
	}
	event := e.Script[e.idx]
	e.idx++
	if event.Kind == KindToolCalls {
		e.pending = event.Requests
	}
	return event, nil
}

func (e *ScriptedEngine) Submit(ctx context.Context, results []tools.CallResult) error {
	if err := verifyBatch(e.pending, results); err != nil {
		return err
	}
	e.Submitted = append(e.Submitted, results)
	e.pending = nil
	return nil
}
