package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_DispatchInvokesAllSubscribedHandlers(t *testing.T) {
	b := New()
	var calls int
	b.Subscribe("OrderPlaced", func(ctx context.Context, message Message) error {
		calls++
		return nil
	})
	b.Subscribe("OrderPlaced", func(ctx context.Context, message Message) error {
		calls++
		return nil
	})

	result, err := b.Dispatch(context.Background(), Message{TypeName: "OrderPlaced"})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, result.HandlersInvoked)
	require.Empty(t, result.Errors)
}

func TestBus_DispatchCollectsHandlerErrorsWithoutAborting(t *testing.T) {
	b := New()
	var secondCalled bool
	b.Subscribe("T", func(ctx context.Context, message Message) error {
		return errors.New("boom")
	})
	b.Subscribe("T", func(ctx context.Context, message Message) error {
		secondCalled = true
		return nil
	})

	result, err := b.Dispatch(context.Background(), Message{TypeName: "T"})
	require.NoError(t, err)
	require.True(t, secondCalled)
	require.Equal(t, 1, result.HandlersInvoked)
	require.Len(t, result.Errors, 1)
}

func TestBus_DispatchRecoversHandlerPanic(t *testing.T) {
	b := New()
	b.Subscribe("T", func(ctx context.Context, message Message) error {
		panic("oh no")
	})

	result, err := b.Dispatch(context.Background(), Message{TypeName: "T"})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
}

func TestBus_DispatchOnNilBusReturnsError(t *testing.T) {
	var b *Bus
	_, err := b.Dispatch(context.Background(), Message{TypeName: "T"})
	require.Error(t, err)
}

func TestBus_DispatchHonorsCancelledContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Dispatch(ctx, Message{TypeName: "T"})
	require.Error(t, err)
}

func TestBus_DispatchUnknownTypeInvokesNoHandlers(t *testing.T) {
	b := New()
	result, err := b.Dispatch(context.Background(), Message{TypeName: "Unknown"})
	require.NoError(t, err)
	require.Equal(t, 0, result.HandlersInvoked)
}
