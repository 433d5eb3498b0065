package run

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cmdfix/internal/engine"
	"cmdfix/internal/tools"
)

// memorySink records frames in order for assertions.
type memorySink struct {
	mu       sync.Mutex
	chunks   []string
	sentinel int
	closes   int
}

func (s *memorySink) WriteChunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentinel > 0 {
		return errors.New("write after sentinel")
	}
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.sentinel == 0 {
		s.sentinel = 1
	}
	return nil
}

type countingTool struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTool) Name() string        { return "counting" }
func (c *countingTool) Description() string { return "counts executions" }
func (c *countingTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (c *countingTool) Execute(ctx context.Context, args json.RawMessage, meta tools.Meta) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "counted", nil
}

func newDispatcher(reg *tools.Registry) *tools.Dispatcher {
	return tools.NewDispatcher(reg, tools.Meta{Timeout: 5 * time.Second, MaxOutputBytes: 64 * 1024}, nil)
}

func TestRunToolCallThenSuggestion(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"path": "/"})
	eng := &engine.ScriptedEngine{Script: []engine.Event{
		{Kind: engine.KindToolCalls, Requests: []tools.CallRequest{{ID: "call_1", Name: "list_directory", Arguments: args}}},
		{Kind: engine.KindTextDelta, Delta: "cd "},
		{Kind: engine.KindTextDelta, Delta: "/existing_dir"},
		{Kind: engine.KindCompleted},
	}}
	sink := &memorySink{}
	ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), sink, nil, nil, 8)

	result, err := ctrl.Run(context.Background(), "cd /nonexistent_dir", 1, "test-model")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != engine.StatusCompleted {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.Suggestion != "cd /existing_dir" {
		t.Fatalf("unexpected suggestion: %q", result.Suggestion)
	}
	if got := strings.Join(sink.chunks, ""); got != result.Suggestion {
		t.Fatalf("stream chunks %q do not round-trip suggestion %q", got, result.Suggestion)
	}
	if sink.sentinel != 1 {
		t.Fatalf("expected exactly one sentinel, got %d", sink.sentinel)
	}
	if len(eng.Submitted) != 1 || len(eng.Submitted[0]) != 1 {
		t.Fatalf("expected one submitted batch with one result: %+v", eng.Submitted)
	}
	if eng.Submitted[0][0].CallID != "call_1" {
		t.Fatalf("call id mismatch: %+v", eng.Submitted[0][0])
	}
	if eng.Submitted[0][0].IsError {
		t.Fatalf("listing should succeed, got error: %q", eng.Submitted[0][0].Output)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].ToolName != "list_directory" {
		t.Fatalf("unexpected tool records: %+v", result.ToolCalls)
	}
}

func TestRunRejectsUnregisteredToolWithoutExecution(t *testing.T) {
	counter := &countingTool{}
	eng := &engine.ScriptedEngine{Script: []engine.Event{
		{Kind: engine.KindToolCalls, Requests: []tools.CallRequest{{ID: "call_1", Name: "delete_all_files"}}},
		{Kind: engine.KindTextDelta, Delta: "ls"},
		{Kind: engine.KindCompleted},
	}}
	sink := &memorySink{}
	ctrl := NewController(eng, newDispatcher(tools.NewRegistry(counter)), sink, nil, nil, 8)

	result, err := ctrl.Run(context.Background(), "rm -rf /tmp/x", 1, "test-model")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if counter.calls != 0 {
		t.Fatalf("expected zero executions, got %d", counter.calls)
	}
	submitted := eng.Submitted[0][0]
	if !submitted.IsError {
		t.Fatalf("expected error result")
	}
	if submitted.Output != "Function 'delete_all_files' is not allowed." {
		t.Fatalf("unexpected output: %q", submitted.Output)
	}
	if result.Status != engine.StatusCompleted {
		t.Fatalf("run should still complete, got %s", result.Status)
	}
}

func TestRunSubmitsMultiCallBatchTogether(t *testing.T) {
	eng := &engine.ScriptedEngine{Script: []engine.Event{
		{Kind: engine.KindToolCalls, Requests: []tools.CallRequest{
			{ID: "call_1", Name: "print_working_directory"},
			{ID: "call_2", Name: "list_processes"},
		}},
		{Kind: engine.KindTextDelta, Delta: "kill 123"},
		{Kind: engine.KindCompleted},
	}}
	ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), &memorySink{}, nil, nil, 8)

	result, err := ctrl.Run(context.Background(), "kill notapid", 1, "test-model")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(eng.Submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(eng.Submitted))
	}
	batch := eng.Submitted[0]
	if len(batch) != 2 {
		t.Fatalf("expected both results submitted together, got %d", len(batch))
	}
	ids := map[string]bool{}
	for _, res := range batch {
		ids[res.CallID] = true
	}
	if !ids["call_1"] || !ids["call_2"] {
		t.Fatalf("call id bijection violated: %+v", batch)
	}
	if result.Status != engine.StatusCompleted {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

// brokenSink fails every chunk write but still accepts Close.
type brokenSink struct {
	writes int
	closes int
}

func (s *brokenSink) WriteChunk(text string) error {
	s.writes++
	return errors.New("broken pipe")
}

func (s *brokenSink) Close() error {
	s.closes++
	return nil
}

func TestRunCompletesWhenChunkWritesFail(t *testing.T) {
	eng := &engine.ScriptedEngine{Script: []engine.Event{
		{Kind: engine.KindTextDelta, Delta: "cd "},
		{Kind: engine.KindTextDelta, Delta: "/existing_dir"},
		{Kind: engine.KindCompleted},
	}}
	sink := &brokenSink{}
	ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), sink, nil, nil, 8)

	result, err := ctrl.Run(context.Background(), "cd /nonexistent_dir", 1, "test-model")
	if err != nil {
		t.Fatalf("delivery failure must not abort the run: %v", err)
	}
	if result.Status != engine.StatusCompleted {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.Suggestion != "cd /existing_dir" {
		t.Fatalf("suggestion must still accumulate: %q", result.Suggestion)
	}
	if sink.writes != 2 {
		t.Fatalf("every chunk should have been attempted, got %d", sink.writes)
	}
	if sink.closes != 1 {
		t.Fatalf("sink must still be closed once, got %d", sink.closes)
	}
}

func TestRunEngineFailureIsTerminal(t *testing.T) {
	eng := &engine.ScriptedEngine{
		Script:  []engine.Event{{Kind: engine.KindTextDelta, Delta: "partial"}},
		NextErr: errors.New("connection reset"),
	}
	sink := &memorySink{}
	ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), sink, nil, nil, 8)

	result, err := ctrl.Run(context.Background(), "true", 1, "test-model")
	if err == nil {
		t.Fatalf("expected engine failure to abort the run")
	}
	if result.Status != engine.StatusFailed {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if sink.sentinel != 1 {
		t.Fatalf("sentinel must be emitted on the error path too, got %d", sink.sentinel)
	}
}

func TestRunClassifiesCancellationAndExpiry(t *testing.T) {
	cases := []struct {
		err  error
		want engine.Status
	}{
		{context.Canceled, engine.StatusCancelled},
		{context.DeadlineExceeded, engine.StatusExpired},
		{errors.New("boom"), engine.StatusFailed},
	}
	for _, tc := range cases {
		eng := &engine.ScriptedEngine{NextErr: tc.err}
		ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), &memorySink{}, nil, nil, 8)
		result, err := ctrl.Run(context.Background(), "true", 1, "test-model")
		if err == nil {
			t.Fatalf("expected error for %v", tc.err)
		}
		if result.Status != tc.want {
			t.Fatalf("classified %v as %s, want %s", tc.err, result.Status, tc.want)
		}
	}
}

func TestRunStepLimit(t *testing.T) {
	batch := func(id string) engine.Event {
		return engine.Event{Kind: engine.KindToolCalls, Requests: []tools.CallRequest{{ID: id, Name: "print_working_directory"}}}
	}
	eng := &engine.ScriptedEngine{Script: []engine.Event{batch("call_1"), batch("call_2"), {Kind: engine.KindCompleted}}}
	ctrl := NewController(eng, newDispatcher(tools.DefaultRegistry()), &memorySink{}, nil, nil, 1)

	result, err := ctrl.Run(context.Background(), "true", 1, "test-model")
	if err == nil {
		t.Fatalf("expected step limit to abort the run")
	}
	if result.Status != engine.StatusFailed {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}
