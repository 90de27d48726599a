package transport

import (
	"context"

	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
)

// InProcessAdapter delivers a message to the in-process Bus instead of an
// external broker. Destination is ignored; the bus fans out by message type
// to every in-process subscriber.
type InProcessAdapter struct {
	bus *dispatcher.Bus
}

// NewInProcess wraps bus as an Adapter.
func NewInProcess(bus *dispatcher.Bus) *InProcessAdapter {
	return &InProcessAdapter{bus: bus}
}

func (a *InProcessAdapter) Send(ctx context.Context, message Message, destination string) error {
	_, err := a.bus.Dispatch(ctx, dispatcher.Message{TypeName: message.MessageType, Payload: message.Payload})
	return err
}
