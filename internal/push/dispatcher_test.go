package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bindu/internal/store"
)

func newCompletedTask(t *testing.T, s store.Storage, webhookURL string) *store.Task {
	t.Helper()
	task, err := s.SubmitTask(context.Background(), "", store.Message{
		Role:    store.RoleUser,
		Content: []store.Part{{Type: "text", Text: "hi"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.SaveWebhook(context.Background(), task.ID, store.WebhookConfig{URL: webhookURL}))

	working := store.TaskWorking
	_, err = s.UpdateTask(context.Background(), task.ID, store.TaskUpdate{NewState: &working})
	require.NoError(t, err)
	completed := store.TaskCompleted
	task, err = s.UpdateTask(context.Background(), task.ID, store.TaskUpdate{NewState: &completed})
	require.NoError(t, err)
	return task
}

func TestDispatcherDeliversOnFirstSuccess(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := store.NewMemory()
	task := newCompletedTask(t, s, server.URL)

	d := New(s, Config{MaxRetries: 2, BaseDelay: time.Millisecond}, nil, nil)
	d.Notify(task)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherRetriesOn5xxThenSucceeds(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := store.NewMemory()
	task := newCompletedTask(t, s, server.URL)

	d := New(s, Config{MaxRetries: 5, BaseDelay: time.Millisecond}, nil, nil)
	d.Notify(task)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherDoesNotRetryOn4xx(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := store.NewMemory()
	task := newCompletedTask(t, s, server.URL)

	d := New(s, Config{MaxRetries: 5, BaseDelay: time.Millisecond}, nil, nil)
	d.Notify(task)

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDispatcherNoopWithoutRegisteredWebhook(t *testing.T) {
	s := store.NewMemory()
	task, err := s.SubmitTask(context.Background(), "", store.Message{
		Role:    store.RoleUser,
		Content: []store.Part{{Type: "text", Text: "hi"}},
	})
	require.NoError(t, err)
	working := store.TaskWorking
	_, err = s.UpdateTask(context.Background(), task.ID, store.TaskUpdate{NewState: &working})
	require.NoError(t, err)
	completed := store.TaskCompleted
	task, err = s.UpdateTask(context.Background(), task.ID, store.TaskUpdate{NewState: &completed})
	require.NoError(t, err)

	d := New(s, Config{}, nil, nil)
	// Must not panic or block; there is nothing to deliver.
	d.Notify(task)
	time.Sleep(20 * time.Millisecond)
}
