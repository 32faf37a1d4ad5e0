package alert

import (
	"context"
	"sync"
)

// Bus is an in-memory broadcast for embedded/standalone deployments.
// Subscribers that fall behind lose alerts; the send never blocks.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Alert
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers a listener. The returned channel is buffered;
// alerts arriving while it is full are dropped.
func (b *Bus) Subscribe() <-chan Alert {
	ch := make(chan Alert, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans the alert out to all current subscribers.
func (b *Bus) Publish(_ context.Context, a Alert) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- a:
		default: // subscriber full, alert lost
		}
	}
	return nil
}
