package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the reference Storage backend: dictionaries guarded by a
// single reader-writer lock, grounded on the teacher's
// internal/a2a/task_manager.go in-memory map pattern and
// internal/a2a/store.go's RWMutex-guarded Store. Deterministic; used for
// tests and single-process deployments.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	contexts  map[string]*Context
	feedback  map[string][]*Feedback
	webhooks  map[string]WebhookConfig
}

// NewMemory constructs an empty in-memory Storage backend.
func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[string]*Task),
		contexts: make(map[string]*Context),
		feedback: make(map[string][]*Feedback),
		webhooks: make(map[string]WebhookConfig),
	}
}

func (m *Memory) SubmitTask(ctx context.Context, contextID string, message Message) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	c, ok := m.contexts[contextID]
	if !ok {
		c = &Context{ContextID: contextID, CreatedAt: now, UpdatedAt: now}
		m.contexts[contextID] = c
	}

	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	taskID := uuid.NewString()
	message.TaskID = taskID
	message.ContextID = contextID

	task := &Task{
		ID:             taskID,
		ContextID:      contextID,
		State:          TaskSubmitted,
		StateTimestamp: now,
		History:        []Message{message},
		Kind:           KindTask,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.tasks[taskID] = task
	c.UpdatedAt = now

	return task.Clone(), nil
}

func (m *Memory) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	if IsTerminal(task.State) && !update.FeedbackOnly {
		return nil, ErrTerminalTaskImmutable
	}

	if update.NewState != nil && *update.NewState != task.State {
		if !CanTransition(task.State, *update.NewState) {
			return nil, ErrInvalidTransition
		}
		task.State = *update.NewState
		task.StateTimestamp = time.Now().UTC()
	}

	if len(update.NewMessages) > 0 {
		task.History = append(task.History, update.NewMessages...)
	}
	if len(update.NewArtifacts) > 0 {
		task.Artifacts = append(task.Artifacts, update.NewArtifacts...)
	}
	if len(update.MetadataMerge) > 0 {
		if task.Metadata == nil {
			task.Metadata = make(map[string]any, len(update.MetadataMerge))
		}
		for k, v := range update.MetadataMerge {
			task.Metadata[k] = v
		}
	}

	task.UpdatedAt = time.Now().UTC()
	if task.StateTimestamp.After(task.UpdatedAt) {
		task.StateTimestamp = task.UpdatedAt
	}

	return task.Clone(), nil
}

func (m *Memory) LoadTask(ctx context.Context, taskID string, historyLength int) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	out := task.Clone()
	if historyLength > 0 && len(out.History) > historyLength {
		out.History = out.History[len(out.History)-historyLength:]
	}
	return out, nil
}

func (m *Memory) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if filter.Status != "" && t.State != filter.Status {
			continue
		}
		if filter.ContextID != "" && t.ContextID != filter.ContextID {
			continue
		}
		matches = append(matches, t)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			matches = nil
		} else {
			matches = matches[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	out := make([]*Task, len(matches))
	for i, t := range matches {
		out[i] = t.Clone()
	}
	return out, nil
}

func (m *Memory) CountTasks(ctx context.Context, status TaskState) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status == "" {
		return len(m.tasks), nil
	}
	n := 0
	for _, t := range m.tasks {
		if t.State == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetContext(ctx context.Context, contextID string) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[contextID]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.MessageHistory = append([]Message(nil), c.MessageHistory...)
	return &cp, nil
}

func (m *Memory) ListContexts(ctx context.Context) ([]*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) ClearContext(ctx context.Context, contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contexts[contextID]; !ok {
		return nil
	}
	delete(m.contexts, contextID)
	for id, t := range m.tasks {
		if t.ContextID == contextID {
			delete(m.tasks, id)
			delete(m.feedback, id)
			delete(m.webhooks, id)
		}
	}
	return nil
}

func (m *Memory) SaveFeedback(ctx context.Context, taskID string, payload map[string]any) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fb := &Feedback{TaskID: taskID, Payload: payload, CreatedAt: time.Now().UTC()}
	m.feedback[taskID] = append(m.feedback[taskID], fb)
	return fb, nil
}

func (m *Memory) GetFeedback(ctx context.Context, taskID string) ([]*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]*Feedback(nil), m.feedback[taskID]...), nil
}

func (m *Memory) SaveWebhook(ctx context.Context, taskID string, cfg WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhooks[taskID] = cfg
	return nil
}

func (m *Memory) LoadWebhook(ctx context.Context, taskID string) (*WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.webhooks[taskID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *Memory) DeleteWebhook(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.webhooks, taskID)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

var _ Storage = (*Memory)(nil)
