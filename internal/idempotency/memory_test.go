package idempotency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryProvider_RejectsEmptyArguments(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()

	_, err := p.IsProcessed(ctx, "", "k")
	require.Error(t, err)

	err = p.MarkProcessed(ctx, "s", "")
	require.Error(t, err)
}

func TestMemoryProvider_MarkThenIsProcessed(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()

	ok, err := p.IsProcessed(ctx, "saga-1", "step-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.MarkProcessed(ctx, "saga-1", "step-1"))

	ok, err = p.IsProcessed(ctx, "saga-1", "step-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryProvider_MarkProcessedIsIdempotent(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()

	require.NoError(t, p.MarkProcessed(ctx, "saga-1", "step-1"))
	require.NoError(t, p.MarkProcessed(ctx, "saga-1", "step-1"))
	require.Len(t, p.seen, 1)
}

func TestMemoryProvider_ConcurrentAccessIsSafe(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.MarkProcessed(ctx, "saga-1", "step")
			_, _ = p.IsProcessed(ctx, "saga-1", "step")
		}(i)
	}
	wg.Wait()

	ok, err := p.IsProcessed(ctx, "saga-1", "step")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryProvider_HonoursCancellation(t *testing.T) {
	p := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.IsProcessed(ctx, "saga-1", "step-1")
	require.ErrorIs(t, err, context.Canceled)

	err = p.MarkProcessed(ctx, "saga-1", "step-1")
	require.ErrorIs(t, err, context.Canceled)
}
