package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockClient is a deterministic client for tests and demos. It plays
// one tool-call turn then suggests a fixed replacement command.
type MockClient struct {
	mu    sync.Mutex
	calls int
}

// NewMockClient returns a simple mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Create(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.calls == 1 && len(req.Tools) > 0 {
		args, _ := json.Marshal(map[string]any{"path": "/", "options": []string{"-la"}})
		return Response{ToolCalls: []ToolCall{{ID: "call_1", Name: "list_directory", Arguments: args}}}, nil
	}
	return Response{Content: "cd /existing_dir"}, nil
}

func (m *MockClient) Stream(ctx context.Context, req Request, onDelta func(string)) (Response, error) {
	resp, err := m.Create(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if resp.Content != "" && onDelta != nil {
		// Deliver in two fragments to exercise chunk ordering.
		half := len(resp.Content) / 2
		onDelta(resp.Content[:half])
		onDelta(resp.Content[half:])
	}
	return resp, nil
}
