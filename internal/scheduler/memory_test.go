package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryEnqueueDequeueFIFO(t *testing.T) {
	s := NewMemory(10)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "a"))
	require.NoError(t, s.Enqueue(ctx, "b"))

	id, ok, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", id)

	id, ok, err = s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", id)
}

func TestMemoryDequeueTimesOut(t *testing.T) {
	s := NewMemory(1)
	ctx := context.Background()

	id, ok, err := s.Dequeue(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, id)
}

func TestMemoryCloseWakesBlockedDequeuers(t *testing.T) {
	s := NewMemory(1)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() {
		_, ok, err := s.Dequeue(ctx, 5*time.Second)
		require.NoError(t, err)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up after close")
	}
}

func TestMemoryEnqueueAfterCloseFails(t *testing.T) {
	s := NewMemory(1)
	require.NoError(t, s.Close())
	err := s.Enqueue(context.Background(), "x")
	require.ErrorIs(t, err, ErrClosed)
}

func TestMemoryDepthReflectsQueueSize(t *testing.T) {
	s := NewMemory(10)
	ctx := context.Background()
	require.NoError(t, s.Enqueue(ctx, "a"))
	require.NoError(t, s.Enqueue(ctx, "b"))

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), depth)
}
