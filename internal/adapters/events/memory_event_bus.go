package events

import (
	"context"
	"sync"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
)

// MemoryEventBus fans events out to subscribers of the same process. It is used when
// Redis is not configured.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.OrdersEvent]struct{}
	closed      bool
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.OrdersEvent]struct{}),
	}
}

var _ providers.EventBus = (*MemoryEventBus)(nil)

// Publish delivers event to every current subscriber of channel without blocking.
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.OrdersEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			observability.LoggerFromContext(ctx).Warn().
				Str("channel", channel).
				Str("event_id", event.ID).
				Msg("subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.OrdersEvent, error) {
	eventChan := make(chan *entities.OrdersEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.OrdersEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.OrdersEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of channel.
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes all subscribers; later subscriptions receive a closed channel.
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
