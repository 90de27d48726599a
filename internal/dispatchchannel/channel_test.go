package dispatchchannel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnbounded_TryWriteNeverFails(t *testing.T) {
	ch := New[int](Options{Mode: Unbounded})
	for i := 0; i < 1000; i++ {
		require.True(t, ch.TryWrite(i))
	}
	require.Equal(t, 1000, ch.Count())
}

func TestBounded_DropNewest(t *testing.T) {
	ch := New[int](Options{Mode: Bounded, Capacity: 2, FullMode: DropNewest})
	require.True(t, ch.TryWrite(1))
	require.True(t, ch.TryWrite(2))
	require.True(t, ch.TryWrite(3)) // dropped, but reports success (no backpressure)
	require.Equal(t, 2, ch.Count())

	v, ok := ch.TryRead()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestBounded_DropOldest(t *testing.T) {
	ch := New[int](Options{Mode: Bounded, Capacity: 2, FullMode: DropOldest})
	require.True(t, ch.TryWrite(1))
	require.True(t, ch.TryWrite(2))
	require.True(t, ch.TryWrite(3))
	require.Equal(t, 2, ch.Count())

	v, ok := ch.TryRead()
	require.True(t, ok)
	require.Equal(t, 2, v) // 1 was evicted

	v, ok = ch.TryRead()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestBounded_Wait_BackpressuresAndNeverExceedsCapacity(t *testing.T) {
	ch := New[int](Options{Mode: Bounded, Capacity: 2, FullMode: Wait})
	require.True(t, ch.TryWrite(1))
	require.True(t, ch.TryWrite(2))
	require.False(t, ch.TryWrite(3))

	var wg sync.WaitGroup
	wg.Add(1)
	writeDone := make(chan struct{})
	go func() {
		defer wg.Done()
		err := ch.Write(context.Background(), 3)
		require.NoError(t, err)
		close(writeDone)
	}()

	select {
	case <-writeDone:
		t.Fatal("writer should be blocked while channel is full")
	case <-time.After(20 * time.Millisecond):
	}
	require.LessOrEqual(t, ch.Count(), 2)

	_, ok := ch.TryRead()
	require.True(t, ok)

	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatal("writer did not unblock after a slot freed")
	}
	require.LessOrEqual(t, ch.Count(), 2)
	wg.Wait()
}

func TestWrite_CancelledContextReturnsBeforeEnqueue(t *testing.T) {
	ch := New[int](Options{Mode: Bounded, Capacity: 1, FullMode: Wait})
	require.True(t, ch.TryWrite(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ch.Write(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, ch.Count())
}

func TestRead_ReturnsErrCompleteAfterDrain(t *testing.T) {
	ch := New[int](Options{Mode: Unbounded})
	require.True(t, ch.TryWrite(1))
	ch.Complete()

	v, err := ch.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = ch.Read(context.Background())
	require.ErrorIs(t, err, ErrComplete)
}

func TestRead_SurfacesCompletionError(t *testing.T) {
	ch := New[int](Options{Mode: Unbounded})
	boom := errors.New("boom")
	ch.CompleteErr(boom)

	_, err := ch.Read(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestWaitToRead_FalseOnlyAfterCompleteAndDrain(t *testing.T) {
	ch := New[int](Options{Mode: Unbounded})
	require.True(t, ch.TryWrite(1))
	ch.Complete()

	ok, err := ch.WaitToRead(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, _ = ch.TryRead()

	ok, err = ch.WaitToRead(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFIFOOrderWithinSingleProducer(t *testing.T) {
	ch := New[int](Options{Mode: Unbounded})
	for i := 0; i < 50; i++ {
		require.True(t, ch.TryWrite(i))
	}
	for i := 0; i < 50; i++ {
		v, ok := ch.TryRead()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}
