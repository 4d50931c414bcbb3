package a2a

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bindu/internal/logger"
	"bindu/internal/scheduler"
	"bindu/internal/store"
)

// Canceller is the worker pool's cancellation boundary as seen by the
// Task Manager: signal any in-flight worker owning taskID. Satisfied by
// *worker.Pool without importing it here.
type Canceller interface {
	Cancel(taskID string)
}

// Manager translates A2A JSON-RPC methods into Storage+Scheduler
// operations, enforcing the protocol invariants of spec §4.4. Grounded
// on the teacher's task_handlers.go request-handling flow, generalized
// from one HTTP verb per operation to a JSON-RPC method registry.
type Manager struct {
	storage    store.Storage
	sched      scheduler.Scheduler
	cancels    Canceller
	pushEnabled bool
	log        *slog.Logger
}

// NewManager constructs a Manager. cancels may be nil if the deployment
// never needs cooperative cancellation signaling (tests, or a pool not
// yet started).
func NewManager(storage store.Storage, sched scheduler.Scheduler, cancels Canceller, pushEnabled bool) *Manager {
	return &Manager{
		storage:     storage,
		sched:       sched,
		cancels:     cancels,
		pushEnabled: pushEnabled,
		log:         logger.WithComponent("a2a.manager"),
	}
}

// SendMessage implements message/send (spec §4.4). It resolves the
// target context and task, appends message, and enqueues for worker
// pickup. It never enqueues and then fails: the enqueue is always the
// last step (spec §7 "observable guarantees").
func (m *Manager) SendMessage(ctx context.Context, contextIDRaw, taskIDRaw string, message store.Message) (*store.Task, *RPCError) {
	contextID := resolveContextID(contextIDRaw)

	if taskIDRaw != "" {
		existing, err := m.storage.LoadTask(ctx, taskIDRaw, 0)
		if err != nil {
			return nil, errInternal(err)
		}
		if existing != nil && !store.IsTerminal(existing.State) {
			return m.resume(ctx, existing, message)
		}
		// Named task is gone or terminal: fall through to create fresh,
		// in the task's own context if it existed (never silently revive
		// a terminal task).
		if existing != nil {
			contextID = existing.ContextID
		}
	} else if contextIDRaw != "" {
		// Open Question #1 resolution: resume the single open
		// non-terminal task in this context if exactly one exists;
		// otherwise mint a new task. Ambiguity never silently picks among
		// several.
		if resumable, ok, err := m.singleOpenTask(ctx, contextID); err != nil {
			return nil, errInternal(err)
		} else if ok {
			return m.resume(ctx, resumable, message)
		}
	}

	message.ContextID = contextID
	task, err := m.storage.SubmitTask(ctx, contextID, message)
	if err != nil {
		return nil, errInternal(err)
	}
	if err := m.sched.Enqueue(ctx, task.ID); err != nil {
		return nil, errInternal(err)
	}
	return task, nil
}

func (m *Manager) singleOpenTask(ctx context.Context, contextID string) (*store.Task, bool, error) {
	tasks, err := m.storage.ListTasks(ctx, store.ListFilter{ContextID: contextID})
	if err != nil {
		return nil, false, err
	}
	var open *store.Task
	for _, t := range tasks {
		if store.IsTerminal(t.State) {
			continue
		}
		if open != nil {
			return nil, false, nil // more than one: ambiguous, mint new
		}
		open = t
	}
	if open == nil {
		return nil, false, nil
	}
	return open, true, nil
}

// resume reactivates a non-terminal task: append message, transition to
// submitted, enqueue (spec §4.4). Message ID and back-references are
// resolved to the task's own IDs regardless of what the caller sent.
func (m *Manager) resume(ctx context.Context, task *store.Task, message store.Message) (*store.Task, *RPCError) {
	message.TaskID = task.ID
	message.ContextID = task.ContextID
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}

	submitted := store.TaskSubmitted
	updated, err := m.storage.UpdateTask(ctx, task.ID, store.TaskUpdate{
		NewState:    &submitted,
		NewMessages: []store.Message{message},
	})
	if err != nil {
		return nil, errInternal(err)
	}
	if err := m.sched.Enqueue(ctx, task.ID); err != nil {
		return nil, errInternal(err)
	}
	return updated, nil
}

// GetTask implements tasks/get.
func (m *Manager) GetTask(ctx context.Context, taskID string, historyLength int) (*store.Task, *RPCError) {
	task, err := m.storage.LoadTask(ctx, taskID, historyLength)
	if err != nil {
		return nil, errInternal(err)
	}
	if task == nil {
		return nil, errTaskNotFound(taskID)
	}
	return task, nil
}

// CancelTask implements tasks/cancel (spec §4.4, §5). The state write is
// synchronous; the worker signal is best-effort and asynchronous.
func (m *Manager) CancelTask(ctx context.Context, taskID string) (*store.Task, *RPCError) {
	task, err := m.storage.LoadTask(ctx, taskID, 0)
	if err != nil {
		return nil, errInternal(err)
	}
	if task == nil {
		return nil, errTaskNotFound(taskID)
	}
	if store.IsTerminal(task.State) {
		return nil, errInvalidStateTransition("task is already in a terminal state")
	}

	canceled := store.TaskCanceled
	updated, err := m.storage.UpdateTask(ctx, taskID, store.TaskUpdate{NewState: &canceled})
	if err != nil {
		if err == store.ErrInvalidTransition {
			return nil, errInvalidStateTransition("task cannot be canceled from its current state")
		}
		return nil, errInternal(err)
	}

	if m.cancels != nil {
		m.cancels.Cancel(taskID)
	}
	return updated, nil
}

// TaskSummary is the metadata-only projection tasks/list returns: every
// Task field except History and Artifacts, which a caller fetches
// individually via tasks/get when it needs them (spec §4.4 "metadata
// only, no history").
type TaskSummary struct {
	ID             string         `json:"id"`
	ContextID      string         `json:"context_id"`
	State          store.TaskState `json:"state"`
	StateTimestamp time.Time      `json:"state_timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Kind           store.TaskKind `json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func summarize(t *store.Task) *TaskSummary {
	return &TaskSummary{
		ID:             t.ID,
		ContextID:      t.ContextID,
		State:          t.State,
		StateTimestamp: t.StateTimestamp,
		Metadata:       t.Metadata,
		Kind:           t.Kind,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// ListTasks implements tasks/list, projecting out History and Artifacts:
// a caller wanting a task's conversation turns calls tasks/get for that
// one task instead (spec §4.4).
func (m *Manager) ListTasks(ctx context.Context, filter store.ListFilter) ([]*TaskSummary, *RPCError) {
	tasks, err := m.storage.ListTasks(ctx, filter)
	if err != nil {
		return nil, errInternal(err)
	}
	summaries := make([]*TaskSummary, len(tasks))
	for i, t := range tasks {
		summaries[i] = summarize(t)
	}
	return summaries, nil
}

// SaveFeedback implements tasks/feedback; succeeds on any state including
// terminal (spec §4.4).
func (m *Manager) SaveFeedback(ctx context.Context, taskID string, payload map[string]any) (*store.Feedback, *RPCError) {
	task, err := m.storage.LoadTask(ctx, taskID, 0)
	if err != nil {
		return nil, errInternal(err)
	}
	if task == nil {
		return nil, errTaskNotFound(taskID)
	}
	fb, err := m.storage.SaveFeedback(ctx, taskID, payload)
	if err != nil {
		return nil, errInternal(err)
	}
	return fb, nil
}

// ListContexts implements contexts/list.
func (m *Manager) ListContexts(ctx context.Context) ([]*store.Context, *RPCError) {
	contexts, err := m.storage.ListContexts(ctx)
	if err != nil {
		return nil, errInternal(err)
	}
	return contexts, nil
}

// ClearContext implements contexts/clear: cascade-delete the context and
// its tasks.
func (m *Manager) ClearContext(ctx context.Context, contextID string) *RPCError {
	if err := m.storage.ClearContext(ctx, contextID); err != nil {
		return errInternal(err)
	}
	return nil
}

// SetPushNotification implements tasks/pushNotification/set; fails with
// PushNotSupported if the deployment disables push (spec §4.4).
func (m *Manager) SetPushNotification(ctx context.Context, taskID string, cfg store.WebhookConfig) *RPCError {
	if !m.pushEnabled {
		return errPushNotSupported()
	}
	task, err := m.storage.LoadTask(ctx, taskID, 0)
	if err != nil {
		return errInternal(err)
	}
	if task == nil {
		return errTaskNotFound(taskID)
	}
	if err := m.storage.SaveWebhook(ctx, taskID, cfg); err != nil {
		return errInternal(err)
	}
	return nil
}

// resolveContextID mints a fresh UUID when raw is empty or malformed.
// Malformed input must never crash the RPC dispatch (spec §4.4,
// DoS-hardening requirement).
func resolveContextID(raw string) string {
	if raw == "" {
		return uuid.NewString()
	}
	if _, err := uuid.Parse(raw); err != nil {
		return uuid.NewString()
	}
	return raw
}
