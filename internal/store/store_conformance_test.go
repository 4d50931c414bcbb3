package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// conformance runs the same behavior table against any Storage
// implementation. The in-memory backend is the semantic reference (spec
// §9); the SQLite backend is compared against it here.
func conformance(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("submit then load round-trips history", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-1", Message{Role: RoleUser, Content: []Part{{Type: "text", Text: "hi"}}})
		require.NoError(t, err)
		require.Equal(t, TaskSubmitted, task.State)
		require.Len(t, task.History, 1)
		require.NotEmpty(t, task.History[0].MessageID)

		loaded, err := s.LoadTask(ctx, task.ID, 0)
		require.NoError(t, err)
		require.Equal(t, task.ID, loaded.ID)
		require.Equal(t, task.History[0].MessageID, loaded.History[0].MessageID)
	})

	t.Run("state_timestamp never exceeds updated_at", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-2", Message{Role: RoleUser})
		require.NoError(t, err)
		require.False(t, task.StateTimestamp.After(task.UpdatedAt))

		working := TaskWorking
		task, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewState: &working})
		require.NoError(t, err)
		require.False(t, task.StateTimestamp.After(task.UpdatedAt))
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-3", Message{Role: RoleUser})
		require.NoError(t, err)

		completed := TaskCompleted
		_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewState: &completed})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal task is immutable except feedback", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-4", Message{Role: RoleUser})
		require.NoError(t, err)
		working, completed := TaskWorking, TaskCompleted
		_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewState: &working})
		require.NoError(t, err)
		task, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewState: &completed})
		require.NoError(t, err)
		preLen := len(task.History)

		_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewMessages: []Message{{Role: RoleAssistant}}})
		require.ErrorIs(t, err, ErrTerminalTaskImmutable)

		fb, err := s.SaveFeedback(ctx, task.ID, map[string]any{"rating": 5.0})
		require.NoError(t, err)
		require.Equal(t, 5, int(fb.Payload["rating"].(float64)))

		reloaded, err := s.LoadTask(ctx, task.ID, 0)
		require.NoError(t, err)
		require.Equal(t, TaskCompleted, reloaded.State)
		require.Len(t, reloaded.History, preLen)
	})

	t.Run("update on missing task fails", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		working := TaskWorking
		_, err := s.UpdateTask(ctx, "missing", TaskUpdate{NewState: &working})
		require.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("load missing task returns nil, nil", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.LoadTask(ctx, "missing", 0)
		require.NoError(t, err)
		require.Nil(t, task)
	})

	t.Run("history truncation keeps the tail", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-5", Message{Role: RoleUser, Content: []Part{{Text: "1"}}})
		require.NoError(t, err)
		working := TaskWorking
		_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewState: &working})
		require.NoError(t, err)
		_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{NewMessages: []Message{
			{Role: RoleAssistant, Content: []Part{{Text: "2"}}},
			{Role: RoleUser, Content: []Part{{Text: "3"}}},
		}})
		require.NoError(t, err)

		truncated, err := s.LoadTask(ctx, task.ID, 1)
		require.NoError(t, err)
		require.Len(t, truncated.History, 1)
		require.Equal(t, "3", truncated.History[0].Content[0].Text)
	})

	t.Run("clear context cascades", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		task, err := s.SubmitTask(ctx, "ctx-6", Message{Role: RoleUser})
		require.NoError(t, err)
		_, err = s.SaveFeedback(ctx, task.ID, map[string]any{"ok": true})
		require.NoError(t, err)
		require.NoError(t, s.SaveWebhook(ctx, task.ID, WebhookConfig{URL: "http://example.test/hook"}))

		require.NoError(t, s.ClearContext(ctx, "ctx-6"))

		gotCtx, err := s.GetContext(ctx, "ctx-6")
		require.NoError(t, err)
		require.Nil(t, gotCtx)

		tasks, err := s.ListTasks(ctx, ListFilter{ContextID: "ctx-6"})
		require.NoError(t, err)
		require.Empty(t, tasks)

		hook, err := s.LoadWebhook(ctx, task.ID)
		require.NoError(t, err)
		require.Nil(t, hook)
	})

	t.Run("list tasks most recent first", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		t1, err := s.SubmitTask(ctx, "ctx-7", Message{Role: RoleUser})
		require.NoError(t, err)
		t2, err := s.SubmitTask(ctx, "ctx-7", Message{Role: RoleUser})
		require.NoError(t, err)

		working := TaskWorking
		_, err = s.UpdateTask(ctx, t1.ID, TaskUpdate{NewState: &working})
		require.NoError(t, err)

		list, err := s.ListTasks(ctx, ListFilter{ContextID: "ctx-7"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, t1.ID, list[0].ID)
		require.Equal(t, t2.ID, list[1].ID)
	})
}

func TestMemoryConformance(t *testing.T) {
	conformance(t, func(t *testing.T) Storage { return NewMemory() })
}

func TestSQLiteConformance(t *testing.T) {
	conformance(t, func(t *testing.T) Storage {
		dir := t.TempDir()
		s, err := NewSQLite(filepath.Join(dir, "bindu.db"))
		require.NoError(t, err)
		return s
	})
}
