package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type countingTool struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTool) Name() string        { return "counting" }
func (c *countingTool) Description() string { return "counts executions" }
func (c *countingTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (c *countingTool) Execute(ctx context.Context, args json.RawMessage, meta Meta) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "ok", nil
}

func testMeta() Meta {
	return Meta{Timeout: 5 * time.Second, MaxOutputBytes: 64 * 1024}
}

func TestDispatchRejectsUnknownToolWithoutExecution(t *testing.T) {
	counter := &countingTool{}
	d := NewDispatcher(NewRegistry(counter), testMeta(), nil)

	res := d.Dispatch(context.Background(), CallRequest{ID: "call_1", Name: "delete_all_files"})
	if !res.IsError {
		t.Fatalf("expected error result")
	}
	if res.Output != "Function 'delete_all_files' is not allowed." {
		t.Fatalf("unexpected output: %q", res.Output)
	}
	if res.CallID != "call_1" {
		t.Fatalf("expected matching call id, got %q", res.CallID)
	}
	if counter.calls != 0 {
		t.Fatalf("expected zero executions, got %d", counter.calls)
	}
}

func TestDispatchMissingRequiredArgument(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), testMeta(), nil)

	res := d.Dispatch(context.Background(), CallRequest{ID: "call_2", Name: "display_file_contents", Arguments: json.RawMessage(`{}`)})
	if !res.IsError {
		t.Fatalf("expected error result for missing file_path")
	}
	if !strings.Contains(res.Output, "file_path") {
		t.Fatalf("expected descriptive message, got %q", res.Output)
	}

	res = d.Dispatch(context.Background(), CallRequest{ID: "call_3", Name: "list_directory", Arguments: json.RawMessage(`{}`)})
	if !res.IsError || !strings.Contains(res.Output, "path") {
		t.Fatalf("expected missing path rejection, got %+v", res)
	}
}

func TestDispatchRejectsUnknownOption(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), testMeta(), nil)
	args, _ := json.Marshal(map[string]any{"path": "/", "options": []string{"-rf"}})
	res := d.Dispatch(context.Background(), CallRequest{ID: "call_4", Name: "list_directory", Arguments: args})
	if !res.IsError {
		t.Fatalf("expected rejection of option outside the enum")
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), testMeta(), nil)
	res := d.Dispatch(context.Background(), CallRequest{ID: "call_5", Name: "list_directory", Arguments: json.RawMessage(`{broken`)})
	if !res.IsError {
		t.Fatalf("expected error result for malformed arguments")
	}
}

func TestDispatchBatchBijection(t *testing.T) {
	counter := &countingTool{}
	d := NewDispatcher(NewRegistry(counter), testMeta(), nil)

	reqs := []CallRequest{
		{ID: "a", Name: "counting"},
		{ID: "b", Name: "nope"},
		{ID: "c", Name: "counting"},
	}
	results := d.DispatchBatch(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	seen := map[string]bool{}
	for _, res := range results {
		seen[res.CallID] = true
	}
	for _, req := range reqs {
		if !seen[req.ID] {
			t.Fatalf("missing result for call %s", req.ID)
		}
	}
	if counter.calls != 2 {
		t.Fatalf("expected 2 executions, got %d", counter.calls)
	}
}
