// Package run drives one conversation run to a terminal state,
// dispatching tool-call batches and forwarding suggestion text to the
// stream sink.
package run

import (
	"context"
	"errors"
	"time"

	"cmdfix/internal/engine"
	"cmdfix/internal/events"
	"cmdfix/internal/render"
	"cmdfix/internal/tools"
	"cmdfix/internal/util"
	"cmdfix/internal/version"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives the suggestion stream. Close emits the end marker and
// must be safe to call on every exit path.
type Sink interface {
	WriteChunk(text string) error
	Close() error
}

// ToolCallRecord records one dispatched call.
type ToolCallRecord struct {
	ToolName   string    `json:"tool_name"`
	CallID     string    `json:"call_id"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	IsError    bool      `json:"is_error"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Result captures a finished run. Immutable once Status is terminal.
type Result struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"timestamp_start"`
	FinishedAt time.Time        `json:"timestamp_end"`
	Command    string           `json:"command"`
	ExitStatus int              `json:"exit_status"`
	Model      string           `json:"model"`
	Status     engine.Status    `json:"status"`
	Suggestion string           `json:"suggestion"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	Events     []events.Event   `json:"events"`
}

// Controller owns one run's mutable state.
type Controller struct {
	engine     engine.Engine
	dispatcher *tools.Dispatcher
	sink       Sink
	renderer   render.Renderer
	logger     *zap.Logger
	maxSteps   int
}

// NewController constructs a Controller. sink and renderer may be nil
// (degraded delivery, run still completes).
func NewController(eng engine.Engine, dispatcher *tools.Dispatcher, sink Sink, renderer render.Renderer, logger *zap.Logger, maxSteps int) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSteps <= 0 {
		maxSteps = 1
	}
	return &Controller{engine: eng, dispatcher: dispatcher, sink: sink, renderer: renderer, logger: logger, maxSteps: maxSteps}
}

// Run drives the conversation to a terminal state. The returned error
// is non-nil only for aborting conditions (engine communication
// failure, step limit); tool failures flow back into the conversation
// as data and stream delivery failures only degrade delivery.
func (c *Controller) Run(ctx context.Context, command string, exitStatus int, model string) (Result, error) {
	started := time.Now()
	result := Result{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		Command:    command,
		ExitStatus: exitStatus,
		Model:      model,
		Status:     engine.StatusCreated,
	}

	emit := func(event events.Event) {
		result.Events = append(result.Events, event)
		if c.renderer != nil {
			c.renderer.Emit(event)
		}
	}

	// The sentinel must reach the consumer on every exit path.
	if c.sink != nil {
		defer func() {
			if err := c.sink.Close(); err != nil {
				c.logger.Warn("stream close failed", zap.Error(err))
			}
		}()
	}

	emit(events.Event{Type: events.RunStarted, Timestamp: started, Payload: events.RunStartedPayload{
		Version:   version.Version,
		Command:   command,
		Model:     model,
		RunID:     result.RunID,
		StartedAt: started,
	}})

	result.Status = engine.StatusInProgress
	steps := 0

	for {
		event, err := c.engine.Next(ctx)
		if err != nil {
			return c.abort(&result, emit, err)
		}

		switch event.Kind {
		case engine.KindToolCalls:
			steps++
			if steps > c.maxSteps {
				return c.abort(&result, emit, errors.New("tool-call step limit exceeded"))
			}
			result.Status = engine.StatusRequiresAction
			if err := c.handleBatch(ctx, &result, emit, event.Requests); err != nil {
				return c.abort(&result, emit, err)
			}
			result.Status = engine.StatusInProgress

		case engine.KindTextDelta:
			result.Suggestion += event.Delta
			emit(events.Event{Type: events.SuggestionDelta, Timestamp: time.Now(), Payload: events.SuggestionDeltaPayload{Delta: event.Delta}})
			if c.sink != nil {
				if err := c.sink.WriteChunk(event.Delta); err != nil {
					// Delivery degrades; the run itself continues.
					c.logger.Warn("suggestion chunk dropped", zap.Error(err))
				}
			}

		case engine.KindCompleted:
			result.Status = engine.StatusCompleted
			result.FinishedAt = time.Now()
			emit(events.Event{Type: events.SuggestionReady, Timestamp: result.FinishedAt, Payload: events.SuggestionReadyPayload{Suggestion: result.Suggestion}})
			emit(events.Event{Type: events.RunFinished, Timestamp: result.FinishedAt, Payload: events.RunFinishedPayload{Status: string(result.Status), FinishedAt: result.FinishedAt}})
			return result, nil
		}
	}
}

// handleBatch dispatches one complete tool-call batch and submits all
// results together. Only one batch is ever outstanding: dispatch and
// submission happen before the next engine event is requested.
func (c *Controller) handleBatch(ctx context.Context, result *Result, emit func(events.Event), requests []tools.CallRequest) error {
	started := time.Now()
	for _, req := range requests {
		emit(events.Event{Type: events.ToolCallStarted, Timestamp: started, Payload: events.ToolCallStartedPayload{
			ToolName:  req.Name,
			CallID:    req.ID,
			Input:     util.RedactSecrets(string(req.Arguments)),
			StartedAt: started,
		}})
	}

	results := c.dispatcher.DispatchBatch(ctx, requests)
	duration := time.Since(started).Milliseconds()

	byID := make(map[string]tools.CallRequest, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
	}
	for _, res := range results {
		req := byID[res.CallID]
		record := ToolCallRecord{
			ToolName:   req.Name,
			CallID:     res.CallID,
			Input:      util.RedactSecrets(string(req.Arguments)),
			Output:     res.Output,
			IsError:    res.IsError,
			StartedAt:  started,
			DurationMs: duration,
		}
		result.ToolCalls = append(result.ToolCalls, record)

		eventType := events.ToolCallFinished
		status := "success"
		if res.IsError {
			eventType = events.ToolCallFailed
			status = "error"
		}
		emit(events.Event{Type: eventType, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
			ToolName:   req.Name,
			CallID:     res.CallID,
			Status:     status,
			Preview:    util.Preview(res.Output, 12, 2000),
			ByteCount:  len(res.Output),
			DurationMs: duration,
		}})
	}

	return c.engine.Submit(ctx, results)
}

func (c *Controller) abort(result *Result, emit func(events.Event), err error) (Result, error) {
	result.Status = classify(err)
	result.FinishedAt = time.Now()
	c.logger.Error("run aborted", zap.String("status", string(result.Status)), zap.Error(err))
	emit(events.Event{Type: events.RunError, Timestamp: result.FinishedAt, Payload: events.RunErrorPayload{Message: err.Error()}})
	emit(events.Event{Type: events.RunFinished, Timestamp: result.FinishedAt, Payload: events.RunFinishedPayload{Status: string(result.Status), FinishedAt: result.FinishedAt}})
	return *result, err
}

// classify maps an aborting error to the terminal status reported
// upward. No terminal status is retried.
func classify(err error) engine.Status {
	switch {
	case errors.Is(err, context.Canceled):
		return engine.StatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return engine.StatusExpired
	default:
		return engine.StatusFailed
	}
}
