// Package dispatcher provides the in-process message bus that fans a
// message out to every handler registered for its type: the Dispatcher
// collaborator SagaCoordinator and the saga timeout delivery loop both send
// through.
package dispatcher

import (
	"context"
	"net/http"
	"sync"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Message is the envelope handed to Dispatch. TypeName selects which
// registered handlers receive it.
type Message struct {
	TypeName string
	Payload  interface{}
}

// Result reports the outcome of fanning a message out to its handlers.
type Result struct {
	HandlersInvoked int
	Errors          []error
}

// Handler processes one message. A returned error marks that handler's
// invocation failed without aborting delivery to the other handlers
// registered for the same type.
type Handler func(ctx context.Context, message Message) error

// Bus is the in-process Dispatcher. It is nil-safe: Dispatch on a nil *Bus
// returns a ConfigurationMissing error instead of panicking, matching how
// collaborators elsewhere in the substrate treat an unwired dependency.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler to receive every message dispatched under
// typeName. Multiple handlers may share a type; all are invoked.
func (b *Bus) Subscribe(typeName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typeName] = append(b.handlers[typeName], handler)
}

// Dispatch fans message out to every handler registered for message.TypeName.
// It returns a non-nil error only when the bus itself cannot run (nil
// receiver) or the context is already done; individual handler failures are
// collected into Result.Errors instead of aborting the fan-out.
func (b *Bus) Dispatch(ctx context.Context, message Message) (Result, error) {
	if b == nil {
		return Result{}, apperrors.ConfigurationMissing("dispatcher bus")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[message.TypeName]...)
	b.mu.RUnlock()

	result := Result{}
	for _, handler := range handlers {
		if err := invoke(ctx, handler, message); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.HandlersInvoked++
	}
	return result, nil
}

func invoke(ctx context.Context, handler Handler, message Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.HandlerFailure(message.TypeName, apperrors.New(apperrors.ErrCodeHandlerFailure, "handler panicked", http.StatusInternalServerError).WithDetails("panic", r))
		}
	}()
	return handler(ctx, message)
}
