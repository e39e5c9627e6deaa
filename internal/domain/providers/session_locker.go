package providers

import "context"

// Unlock releases a lock taken by SessionLocker.TryLock.
type Unlock func(ctx context.Context) error

// SessionLocker serializes extraction calls on one session. TryLock never waits: ok is
// false when another call holds the session.
type SessionLocker interface {
	TryLock(ctx context.Context, sessionID string) (unlock Unlock, ok bool, err error)
}
