package idempotency

import (
	"context"
	"sync"
)

// MemoryProvider is an in-process Provider backed by a set of (sagaID, key)
// tuples, read-mostly under an RWMutex since IsProcessed vastly outnumbers
// MarkProcessed in the saga hot path.
type MemoryProvider struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewMemory creates an empty MemoryProvider.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{seen: make(map[string]struct{})}
}

func (p *MemoryProvider) IsProcessed(ctx context.Context, sagaID, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validate(sagaID, key); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.seen[tupleKey(sagaID, key)]
	return ok, nil
}

func (p *MemoryProvider) MarkProcessed(ctx context.Context, sagaID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(sagaID, key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[tupleKey(sagaID, key)] = struct{}{}
	return nil
}
