// Package worker drives tasks from the scheduler's queue to a terminal
// state by invoking the user-supplied agent handler (spec §4.3). Handler
// return classification is a tagged union, decided post-call by shape, as
// spec §9 requires, since the handler's own language has no static type
// to dispatch on.
package worker

import (
	"context"
	"errors"
	"fmt"

	"bindu/internal/store"
)

// HistoryEntry is the [{role, content}] projection of a Task's history
// that the handler sees. It never carries Bindu's internal bookkeeping
// (message_id, task_id, context_id, metadata).
type HistoryEntry struct {
	Role    string       `json:"role"`
	Content []store.Part `json:"content"`
}

// ProjectHistory converts stored Messages into the handler-facing shape.
func ProjectHistory(history []store.Message) []HistoryEntry {
	out := make([]HistoryEntry, len(history))
	for i, m := range history {
		out[i] = HistoryEntry{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Handler is the user-supplied agent function: it maps a conversation
// history to a response. It may be synchronous or a long-running
// cooperative routine; ctx is canceled when the task is canceled via
// tasks/cancel, and a cooperative handler should observe it at its next
// yield point.
type Handler func(ctx context.Context, history []HistoryEntry) (any, error)

// ErrCancelled is the sentinel a Handler returns (or wraps) to signal it
// observed cancellation rather than failing. Classify also treats any
// error the handler returns after ctx was canceled as cancellation.
var ErrCancelled = errors.New("worker: handler canceled")

// structuredResponseState keys recognized as a ControlDirective per the
// structured-response protocol (spec §4.3).
const (
	keyState  = "state"
	keyPrompt = "prompt"
)

// Directive is a handler return value recognized by shape as a state
// directive rather than a plain answer (spec glossary: "structured
// response").
type Directive struct {
	State  store.TaskState
	Prompt string
}

// Outcome is the tagged union a Classify call resolves to.
type Outcome struct {
	Plain     *PlainResult
	Directive *Directive
	Cancelled bool
	Err       error // non-nil only for the "any other error" branch
}

// PlainResult wraps a handler's non-directive return value, already
// rendered into a single text part. Structured (non-text) values are
// rendered via a best-effort string conversion so they still appear in
// the assistant message content.
type PlainResult struct {
	Text string
}

// Classify inspects a Handler's return value (including a recovered
// panic, passed as err) and resolves it to exactly one Outcome branch,
// per the ordered rules in spec §4.3 step 5.
func Classify(ctx context.Context, result any, err error) Outcome {
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(ctx.Err(), context.Canceled) {
			return Outcome{Cancelled: true}
		}
		return Outcome{Err: err}
	}

	if directive, ok := asDirective(result); ok {
		return Outcome{Directive: directive}
	}

	return Outcome{Plain: &PlainResult{Text: renderText(result)}}
}

// asDirective reports whether result has the shape
// {"state": "input-required"|"auth-required", "prompt": "..."} — a map
// whose "state" is one of the two non-terminal directive values. "prompt"
// is taken when it is a string (empty otherwise); other keys are ignored.
func asDirective(result any) (*Directive, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	rawState, hasState := m[keyState]
	if !hasState {
		return nil, false
	}
	stateStr, ok := rawState.(string)
	if !ok {
		return nil, false
	}
	state := store.TaskState(stateStr)
	if state != store.TaskInputRequired && state != store.TaskAuthRequired {
		return nil, false
	}
	prompt, _ := m[keyPrompt].(string)
	return &Directive{State: state, Prompt: prompt}, true
}

func renderText(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
