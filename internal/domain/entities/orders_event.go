package entities

import (
	"time"

	"github.com/google/uuid"
)

// OrdersEventType represents the type of session orders event
type OrdersEventType string

const (
	OrdersEventTypeSnapshotUpdated OrdersEventType = "snapshot_updated"
	OrdersEventTypeSessionReset    OrdersEventType = "session_reset"
)

// OrdersEvent is published whenever a session's snapshot changes so display
// collaborators can re-render without polling.
type OrdersEvent struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	EventType OrdersEventType `json:"event_type"`
	Engine    string          `json:"engine,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  *OrdersSnapshot `json:"snapshot,omitempty"`
}

// NewOrdersEvent creates a new orders event
func NewOrdersEvent(sessionID string, eventType OrdersEventType, engine string, snapshot *OrdersSnapshot) *OrdersEvent {
	return &OrdersEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		EventType: eventType,
		Engine:    engine,
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	}
}
