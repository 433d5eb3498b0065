package tools

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher turns engine-requested tool calls into capability
// executions. Validation always precedes execution: a name missing
// from the registry or malformed arguments never spawn a process.
type Dispatcher struct {
	registry *Registry
	meta     Meta
	logger   *zap.Logger
}

// NewDispatcher constructs a Dispatcher over a registry.
func NewDispatcher(registry *Registry, meta Meta, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, meta: meta, logger: logger}
}

// Dispatch resolves and executes one call, always producing a result.
// Failures are carried in the result, never returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req CallRequest) CallResult {
	tool, ok := d.registry.Get(req.Name)
	if !ok {
		d.logger.Warn("rejected tool call", zap.String("tool", req.Name))
		return CallResult{
			CallID:  req.ID,
			Output:  fmt.Sprintf("Function '%s' is not allowed.", req.Name),
			IsError: true,
		}
	}

	d.logger.Debug("dispatching tool call",
		zap.String("tool", req.Name),
		zap.String("call_id", req.ID))

	output, err := tool.Execute(ctx, req.Arguments, d.meta)
	if err != nil {
		return CallResult{CallID: req.ID, Output: err.Error(), IsError: true}
	}
	return CallResult{CallID: req.ID, Output: output}
}

// DispatchBatch executes every call of one batch and returns exactly
// one result per request. Calls are independent child processes, so
// they run concurrently; the batch is complete before it returns.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []CallRequest) []CallResult {
	results := make([]CallResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req CallRequest) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}
