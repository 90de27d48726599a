package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
)

func TestInProcessAdapter_SendDispatchesToBus(t *testing.T) {
	bus := dispatcher.New()
	var received dispatcher.Message
	bus.Subscribe("OrderPlaced", func(ctx context.Context, message dispatcher.Message) error {
		received = message
		return nil
	})

	adapter := NewInProcess(bus)
	err := adapter.Send(context.Background(), Message{MessageType: "OrderPlaced", Payload: []byte(`{}`)}, "q1")
	require.NoError(t, err)
	require.Equal(t, "OrderPlaced", received.TypeName)
}
