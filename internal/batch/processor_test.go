package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlushesOnMaxBatchSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	p := New(Options{MaxBatchSize: 3, MaxBatchDelay: time.Hour}, 16, func(b []int) {
		mu.Lock()
		defer mu.Unlock()
		cp := append([]int(nil), b...)
		batches = append(batches, cp)
	}, nil)
	defer p.Close()

	for i := 0; i < 9; i++ {
		require.True(t, p.TrySubmit(i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, b := range batches {
		require.LessOrEqual(t, len(b), 3)
		require.GreaterOrEqual(t, len(b), 1)
	}
}

func TestFlushesOnMaxBatchDelay(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	p := New(Options{MaxBatchSize: 100, MaxBatchDelay: 20 * time.Millisecond}, 16, func(b []int) {
		mu.Lock()
		defer mu.Unlock()
		cp := append([]int(nil), b...)
		batches = append(batches, cp)
	}, nil)
	defer p.Close()

	require.True(t, p.TrySubmit(1))
	require.True(t, p.TrySubmit(2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, batches[0])
}

func TestPanicInProcessIsIsolated(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	p := New(Options{MaxBatchSize: 1, MaxBatchDelay: 10 * time.Millisecond}, 4, func(b []int) {
		if b[0] == 2 {
			panic("boom")
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, b...)
	}, nil)
	defer p.Close()

	require.True(t, p.TrySubmit(1))
	require.True(t, p.TrySubmit(2))
	require.True(t, p.TrySubmit(3))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 3}, seen)
}

func TestCloseFlushesPendingPartialBatch(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	p := New(Options{MaxBatchSize: 100, MaxBatchDelay: time.Hour}, 16, func(b []int) {
		mu.Lock()
		defer mu.Unlock()
		cp := append([]int(nil), b...)
		batches = append(batches, cp)
	}, nil)

	require.True(t, p.TrySubmit(1))
	require.True(t, p.TrySubmit(2))
	require.True(t, p.TrySubmit(3))

	p.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	require.Equal(t, []int{1, 2, 3}, batches[0])
}

func TestCancelDropsPendingPartialBatch(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	p := New(Options{MaxBatchSize: 100, MaxBatchDelay: time.Hour}, 16, func(b []int) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, b)
	}, nil)

	require.True(t, p.TrySubmit(1))
	p.Cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, batches)
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	p := New(Options{MaxBatchSize: 1, MaxBatchDelay: time.Millisecond}, 1, func([]int) {
		time.Sleep(50 * time.Millisecond)
	}, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Submit(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(Options{MaxBatchSize: 1, MaxBatchDelay: time.Millisecond}, 1, func([]int) {}, nil)
	p.Close()
	p.Close()
}
