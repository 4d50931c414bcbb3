package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bindu/internal/scheduler"
	"bindu/internal/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []*store.Task
}

func (r *recordingNotifier) Notify(task *store.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func submit(t *testing.T, s store.Storage) *store.Task {
	t.Helper()
	task, err := s.SubmitTask(context.Background(), "", store.Message{
		Role:    store.RoleUser,
		Content: []store.Part{{Type: "text", Text: "hi"}},
	})
	require.NoError(t, err)
	return task
}

func waitForState(t *testing.T, s store.Storage, taskID string, want store.TaskState) *store.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.LoadTask(context.Background(), taskID, 0)
		require.NoError(t, err)
		if task != nil && task.State == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", taskID, want)
	return nil
}

func TestPoolCompletesPlainResult(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)
	notifier := &recordingNotifier{}

	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		return "done", nil
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 2, PollTimeout: 50 * time.Millisecond}, notifier, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	task := submit(t, s)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))

	final := waitForState(t, s, task.ID, store.TaskCompleted)
	require.Len(t, final.History, 2)
	require.Equal(t, "done", final.History[1].Content[0].Text)
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPoolAppliesDirectiveAsNonTerminal(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)

	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		return map[string]any{"state": "input-required", "prompt": "need more"}, nil
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 1, PollTimeout: 50 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	task := submit(t, s)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))

	final := waitForState(t, s, task.ID, store.TaskInputRequired)
	require.Equal(t, "need more", final.History[1].Content[0].Text)
}

func TestPoolRetriesTransientErrorThenSucceeds(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)

	var attempts int32
	var mu sync.Mutex
	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return nil, Retryable(errors.New("transient backend hiccup"))
		}
		return "recovered", nil
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 1, PollTimeout: 50 * time.Millisecond, RetryMax: 5}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	task := submit(t, s)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))

	final := waitForState(t, s, task.ID, store.TaskCompleted)
	require.Len(t, final.History, 2, "retries must not duplicate history entries")
	require.Equal(t, "recovered", final.History[1].Content[0].Text)
}

func TestPoolFailsAfterExhaustingRetries(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)

	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		return nil, Retryable(errors.New("still broken"))
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 1, PollTimeout: 50 * time.Millisecond, RetryMax: 2}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	task := submit(t, s)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))

	final := waitForState(t, s, task.ID, store.TaskFailed)
	require.Equal(t, "still broken", final.Metadata["_error"])
}

func TestPoolCancelStopsCooperativeHandler(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)

	started := make(chan struct{})
	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ErrCancelled
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 1, PollTimeout: 50 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	task := submit(t, s)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))

	<-started
	pool.Cancel(task.ID)

	waitForState(t, s, task.ID, store.TaskCanceled)
}

func TestPoolDropsTaskAlreadyClaimedOrGone(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)

	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, history []HistoryEntry) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "ok", nil
	}

	pool := NewPool(s, sched, handler, Config{WorkerCount: 1, PollTimeout: 20 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	// Enqueueing an ID with no backing task must be silently dropped.
	require.NoError(t, sched.Enqueue(context.Background(), "no-such-task"))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 0, calls)
	mu.Unlock()

	// A task already claimed (working) when dequeued must be dropped too.
	task := submit(t, s)
	working := store.TaskWorking
	_, err := s.UpdateTask(context.Background(), task.ID, store.TaskUpdate{NewState: &working})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(context.Background(), task.ID))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 0, calls)
	mu.Unlock()
}
