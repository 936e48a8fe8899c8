package overlay

import (
	"context"
	"sync"
)

// MemoryHub connects several Sessions of one process as if they were
// separate bridge processes sharing a backbone.
type MemoryHub struct {
	mu      sync.RWMutex
	members map[*memoryBackbone]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{members: make(map[*memoryBackbone]struct{})}
}

// Backbone returns a new endpoint attached to the hub.
func (h *MemoryHub) Backbone() Backbone {
	b := &memoryBackbone{hub: h, inbox: make(chan Envelope, 64)}
	h.mu.Lock()
	h.members[b] = struct{}{}
	h.mu.Unlock()
	return b
}

type memoryBackbone struct {
	hub       *MemoryHub
	inbox     chan Envelope
	closeOnce sync.Once
}

func (b *memoryBackbone) Publish(ctx context.Context, envelope Envelope) error {
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for member := range b.hub.members {
		select {
		case member.inbox <- envelope:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *memoryBackbone) Run(ctx context.Context, handler func(Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope := <-b.inbox:
			handler(envelope)
		}
	}
}

func (b *memoryBackbone) Close() error {
	b.closeOnce.Do(func() {
		b.hub.mu.Lock()
		delete(b.hub.members, b)
		b.hub.mu.Unlock()
	})
	return nil
}
