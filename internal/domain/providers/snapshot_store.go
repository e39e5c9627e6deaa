package providers

import (
	"context"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// SnapshotStore keeps the latest OrdersSnapshot of each dictation session. It is the
// "previous" input of the next extraction call.
type SnapshotStore interface {
	// Get returns the session snapshot, or nil and no error when the session is unknown
	Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error)

	// Save replaces the session snapshot
	Save(ctx context.Context, sessionID string, snapshot entities.OrdersSnapshot) error

	// Delete forgets the session
	Delete(ctx context.Context, sessionID string) error
}
