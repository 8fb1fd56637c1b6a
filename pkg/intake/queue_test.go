package intake

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryEnqueueFull(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryEnqueue([]byte("f1")))
	require.NoError(t, q.TryEnqueue([]byte("f2")))
	require.ErrorIs(t, q.TryEnqueue([]byte("f3")), ErrQueueFull)
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, 2, q.Len())
	q.CloseAndDrain()
}

func TestWorkerDrainsInOrder(t *testing.T) {
	q := NewQueue(16)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryEnqueue([]byte(fmt.Sprintf("frame-%d", i))))
	}

	got := make(chan string, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.RunWorker(ctx, func(raw []byte) error {
		// raw is pooled; keep a copy
		got <- string(raw)
		return nil
	})

	for i := 0; i < 5; i++ {
		select {
		case s := <-got:
			require.Equal(t, fmt.Sprintf("frame-%d", i), s)
		case <-time.After(time.Second):
			t.Fatal("worker stalled")
		}
	}
}

func TestEnqueueBlocksUntilContextDone(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue([]byte("f1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, []byte("f2"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, uint64(1), q.Dropped())
	q.CloseAndDrain()
}

func TestCloseAndDrainReleasesBufferedFrames(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryEnqueue([]byte("frame")))
	}
	q.CloseAndDrain()
	require.Equal(t, 0, q.Len())
}
