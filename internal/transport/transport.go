// Package transport provides the TransportAdapter collaborator interface and
// a name-keyed TransportRegistry the outbox publisher resolves adapters from.
package transport

import (
	"context"
	"sync"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// Message is the opaque envelope handed to an adapter's Send. Payload is
// already serialized; adapters never need the Serializer.
type Message struct {
	MessageID   string
	MessageType string
	Payload     []byte
	Headers     map[string]string
}

// Adapter delivers one message to one destination over a specific
// transport. Send returning an error marks the fan-out row failed and
// eligible for retry; it never panics across this boundary.
type Adapter interface {
	Send(ctx context.Context, message Message, destination string) error
}

// Registration pairs a registered Adapter with its name and a display name.
// The registry stores DisplayName; none of its methods return it.
type Registration struct {
	Name        string
	DisplayName string
	Adapter     Adapter
}

// Registry is a name-keyed lookup table of transport adapters. It is built
// once at start-up and resolved from concurrently by every outbox publisher
// cycle, so all operations are safe under a RWMutex.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Registration)}
}

// Register adds or replaces the adapter for name.
func (r *Registry) Register(name, displayName string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = Registration{Name: name, DisplayName: displayName, Adapter: adapter}
}

// Resolve looks up the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return reg.Adapter, true
}

// MustResolve is Resolve but returns a ConfigurationMissing error instead of
// a bool, for callers (the outbox background loop) that cannot proceed
// without the adapter and want a ServiceError in their failure path.
func (r *Registry) MustResolve(name string) (Adapter, error) {
	adapter, ok := r.Resolve(name)
	if !ok {
		return nil, apperrors.ConfigurationMissing("transport adapter: " + name)
	}
	return adapter, nil
}

// Names returns every registered transport name, for the health surface.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
