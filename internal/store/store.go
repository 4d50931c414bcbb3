// Package store persists Bindu's Tasks, Contexts, Feedback, and webhook
// configuration behind a single Storage interface. Three backends
// implement it: an in-memory map set (the semantic reference), an on-disk
// SQLite backend, and a Postgres backend with per-DID schema isolation.
// The in-memory and SQLite backends are exercised by the same conformance
// suite in store_conformance_test.go; Postgres is not, as it needs a live
// server.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// TaskState is one of the eight states a Task can occupy (spec §3).
type TaskState string

const (
	TaskSubmitted     TaskState = "submitted"
	TaskWorking       TaskState = "working"
	TaskInputRequired TaskState = "input-required"
	TaskAuthRequired  TaskState = "auth-required"
	TaskCompleted     TaskState = "completed"
	TaskFailed        TaskState = "failed"
	TaskCanceled      TaskState = "canceled"
	TaskRejected      TaskState = "rejected"
)

// TaskKind is an informational discriminant; it never affects state
// machine behavior.
type TaskKind string

const (
	KindTask     TaskKind = "task"
	KindTeam     TaskKind = "team"
	KindWorkflow TaskKind = "workflow"
)

// terminalStates are states from which no further transition is allowed
// except feedback-only mutations.
var terminalStates = map[TaskState]bool{
	TaskCompleted: true,
	TaskFailed:    true,
	TaskCanceled:  true,
	TaskRejected:  true,
}

// IsTerminal reports whether state is one Bindu never transitions out of.
func IsTerminal(state TaskState) bool {
	return terminalStates[state]
}

// transitions enumerates the state machine from §4.1. A state absent from
// the map (the terminal ones) allows no further transition.
var transitions = map[TaskState]map[TaskState]bool{
	TaskSubmitted: {
		TaskWorking:  true,
		TaskCanceled: true,
		TaskFailed:   true,
		TaskRejected: true,
	},
	TaskWorking: {
		TaskInputRequired: true,
		TaskAuthRequired:  true,
		TaskCompleted:     true,
		TaskFailed:        true,
		TaskCanceled:      true,
	},
	TaskInputRequired: {
		TaskSubmitted: true, // resumed by a follow-up message/send, spec §4.4
		TaskWorking:   true,
		TaskCanceled:  true,
		TaskFailed:    true,
	},
	TaskAuthRequired: {
		TaskSubmitted: true, // resumed by a follow-up message/send, spec §4.4
		TaskWorking:   true,
		TaskCanceled:  true,
		TaskFailed:    true,
	},
}

// CanTransition reports whether from->to is a legal state change.
func CanTransition(from, to TaskState) bool {
	if from == to {
		return false
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Role is the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Part is one piece of a Message's content.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a single conversational turn.
type Message struct {
	MessageID         string            `json:"message_id"`
	TaskID            string            `json:"task_id,omitempty"`
	ContextID         string            `json:"context_id,omitempty"`
	Role              Role              `json:"role"`
	Content           []Part            `json:"content"`
	ReferenceTaskIDs  []string          `json:"reference_task_ids,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// Artifact is an opaque structured task output.
type Artifact struct {
	ArtifactID string          `json:"artifact_id"`
	Name       string          `json:"name,omitempty"`
	Parts      []Part          `json:"parts,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Task is one unit of work: a conversation turn plus its state through
// completion (spec §3).
type Task struct {
	ID             string         `json:"id"`
	ContextID      string         `json:"context_id"`
	State          TaskState      `json:"state"`
	StateTimestamp time.Time      `json:"state_timestamp"`
	History        []Message      `json:"history"`
	Artifacts      []Artifact     `json:"artifacts,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Kind           TaskKind       `json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep-enough copy safe for a reader to hold after the
// Storage's lock is released.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.History = append([]Message(nil), t.History...)
	out.Artifacts = append([]Artifact(nil), t.Artifacts...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Context groups related tasks so a follow-up message/send on the same
// context_id resumes the conversation (spec §3).
type Context struct {
	ContextID      string         `json:"context_id"`
	ContextData    map[string]any `json:"context_data,omitempty"`
	MessageHistory []Message      `json:"message_history,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Feedback is a post-hoc record keyed by task_id; appendable even on
// terminal tasks.
type Feedback struct {
	TaskID    string         `json:"task_id"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// WebhookConfig is a per-task (or global) delivery target for terminal
// state transitions.
type WebhookConfig struct {
	URL         string `json:"url"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// TaskUpdate describes a partial, atomic mutation to a Task. Zero-value
// (nil) fields are left untouched; everything else is append/merge, never
// replace, per §4.1's guarantees.
type TaskUpdate struct {
	NewState      *TaskState
	NewMessages   []Message
	NewArtifacts  []Artifact
	MetadataMerge map[string]any
	// FeedbackOnly, when true, signals the caller is appending feedback and
	// therefore exempt from the terminal-task immutability rule. Storage
	// itself never receives feedback through UpdateTask; this flag exists
	// for backends that route feedback through the same internal mutator.
	FeedbackOnly bool
}

// ListFilter narrows ListTasks.
type ListFilter struct {
	Status    TaskState
	ContextID string
	Limit     int
	Offset    int
}

// Errors returned across both backends. Callers (the Task Manager) map
// these onto the JSON-RPC error taxonomy in §7.
var (
	ErrTaskNotFound         = errors.New("store: task not found")
	ErrContextNotFound      = errors.New("store: context not found")
	ErrInvalidTransition    = errors.New("store: invalid state transition")
	ErrTerminalTaskImmutable = errors.New("store: terminal task is immutable")
)

// Storage abstracts the durable store of Tasks, Contexts, Messages, and
// Feedback described in spec §4.1. Both the in-memory and Postgres
// backends implement this interface exactly; the in-memory backend is the
// semantic reference.
type Storage interface {
	// SubmitTask atomically ensures a context exists, allocates a task in
	// state submitted with history=[message], and returns the snapshot.
	SubmitTask(ctx context.Context, contextID string, message Message) (*Task, error)

	// UpdateTask atomically applies update to the named task. Fails with
	// ErrTaskNotFound if gone, ErrInvalidTransition if update.NewState is
	// set and illegal, ErrTerminalTaskImmutable if the task is terminal and
	// update carries a non-feedback mutation.
	UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*Task, error)

	// LoadTask reads a task. historyLength<=0 means full history;
	// historyLength>0 truncates history to the last N entries. Returns
	// (nil, nil) if the task does not exist.
	LoadTask(ctx context.Context, taskID string, historyLength int) (*Task, error)

	// ListTasks returns tasks matching filter, most-recent-first by
	// UpdatedAt.
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error)

	// CountTasks counts tasks, optionally filtered by status. Empty status
	// counts all tasks.
	CountTasks(ctx context.Context, status TaskState) (int, error)

	// GetContext returns (nil, nil) if contextID does not exist.
	GetContext(ctx context.Context, contextID string) (*Context, error)

	// ListContexts returns every known context.
	ListContexts(ctx context.Context) ([]*Context, error)

	// ClearContext cascade-deletes the context, its tasks, and their
	// feedback.
	ClearContext(ctx context.Context, contextID string) error

	// SaveFeedback appends a feedback record for taskID. Succeeds even if
	// the task is terminal.
	SaveFeedback(ctx context.Context, taskID string, payload map[string]any) (*Feedback, error)

	// GetFeedback returns every feedback record for taskID, oldest first.
	GetFeedback(ctx context.Context, taskID string) ([]*Feedback, error)

	// SaveWebhook registers (or replaces) the webhook for taskID.
	SaveWebhook(ctx context.Context, taskID string, cfg WebhookConfig) error

	// LoadWebhook returns (nil, nil) if no webhook is registered.
	LoadWebhook(ctx context.Context, taskID string) (*WebhookConfig, error)

	// DeleteWebhook removes a registered webhook. A no-op if none exists.
	DeleteWebhook(ctx context.Context, taskID string) error

	// Ping verifies the backend is reachable, used by /health.
	Ping(ctx context.Context) error

	// Close releases backend resources (connection pools, file handles).
	Close() error
}
