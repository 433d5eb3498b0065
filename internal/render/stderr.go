package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"cmdfix/internal/events"
)

// StderrRenderer streams run progress as plain text. The wrapped
// command owns stdout, so progress goes to a separate writer
// (normally stderr).
type StderrRenderer struct {
	w                io.Writer
	mu               sync.Mutex
	verbose          bool
	quiet            bool
	sawDelta         bool
	endedWithNewline bool
}

// NewStderrRenderer creates a renderer for plain text progress.
func NewStderrRenderer(w io.Writer, verbose bool, quiet bool) *StderrRenderer {
	return &StderrRenderer{w: w, verbose: verbose, quiet: quiet}
}

func (r *StderrRenderer) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case events.RunStarted:
		if payload, ok := event.Payload.(events.RunStartedPayload); ok {
			if r.quiet || !r.verbose {
				return
			}
			fmt.Fprintf(r.w, "cmdfix v%s | command: %s | model: %s | run: %s\n", payload.Version, payload.Command, payload.Model, payload.RunID)
		}
	case events.ToolCallStarted:
		if payload, ok := event.Payload.(events.ToolCallStartedPayload); ok {
			if r.quiet || !r.verbose {
				return
			}
			fmt.Fprintf(r.w, "tool: %s start (%s)\n", payload.ToolName, payload.CallID)
		}
	case events.ToolCallFinished, events.ToolCallFailed:
		if payload, ok := event.Payload.(events.ToolCallFinishedPayload); ok {
			if r.quiet {
				return
			}
			status := payload.Status
			if status == "success" {
				status = "ok"
			} else if status == "error" {
				status = "err"
			}
			fmt.Fprintf(r.w, "tool: %s %s (%dms, %d bytes)\n", payload.ToolName, status, payload.DurationMs, payload.ByteCount)
			if r.verbose && payload.Preview != "" {
				for _, line := range strings.Split(payload.Preview, "\n") {
					fmt.Fprintf(r.w, "  %s\n", line)
				}
			}
		}
	case events.SuggestionDelta:
		if payload, ok := event.Payload.(events.SuggestionDeltaPayload); ok {
			if r.quiet {
				return
			}
			if payload.Delta != "" {
				fmt.Fprint(r.w, payload.Delta)
				r.sawDelta = true
				r.endedWithNewline = strings.HasSuffix(payload.Delta, "\n")
			}
		}
	case events.SuggestionReady:
		if payload, ok := event.Payload.(events.SuggestionReadyPayload); ok {
			if r.quiet {
				return
			}
			if r.sawDelta {
				if !r.endedWithNewline {
					fmt.Fprintln(r.w)
				}
				return
			}
			fmt.Fprintln(r.w, payload.Suggestion)
		}
	case events.RunError:
		if payload, ok := event.Payload.(events.RunErrorPayload); ok {
			fmt.Fprintf(r.w, "\nError: %s\n", payload.Message)
		}
	}
}

func (r *StderrRenderer) Close() error {
	return nil
}
