package providers

import (
	"context"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to orders events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.OrdersEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.OrdersEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelOrdersUpdates receives every session's events
	EventChannelOrdersUpdates = "orders:updates"

	// EventChannelSessionPrefix is the prefix for session-specific channels
	EventChannelSessionPrefix = "orders:session:"
)

// GetSessionChannel returns the channel name for a specific session
func GetSessionChannel(sessionID string) string {
	return EventChannelSessionPrefix + sessionID
}
