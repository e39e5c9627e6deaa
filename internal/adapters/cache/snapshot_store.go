package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

const snapshotKeyPrefix = "orders:snapshot:"

// SnapshotStore keeps session snapshots as JSON in a CacheProvider. Every save
// refreshes the TTL, so idle sessions expire on their own.
type SnapshotStore struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

// NewSnapshotStore creates a snapshot store backed by cache. A ttl of zero keeps
// snapshots until they are deleted.
func NewSnapshotStore(cache providers.CacheProvider, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{cache: cache, ttl: ttl}
}

var _ providers.SnapshotStore = (*SnapshotStore)(nil)

func snapshotKey(sessionID string) string {
	return snapshotKeyPrefix + sessionID
}

// Get returns the stored snapshot, or nil when the session is unknown.
func (s *SnapshotStore) Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error) {
	data, err := s.cache.Get(ctx, snapshotKey(sessionID))
	if errors.Is(err, providers.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load session snapshot", err)
	}

	var snapshot entities.OrdersSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, apperrors.NewInternalError("stored session snapshot is corrupt", err)
	}
	if snapshot.Medications == nil {
		snapshot.Medications = []entities.MedicationOrder{}
	}
	if snapshot.Labs == nil {
		snapshot.Labs = []entities.LabOrder{}
	}
	return &snapshot, nil
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, snapshot entities.OrdersSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.NewInternalError("failed to encode session snapshot", err)
	}
	if err := s.cache.Set(ctx, snapshotKey(sessionID), data, int(s.ttl/time.Second)); err != nil {
		return apperrors.NewInternalError("failed to save session snapshot", err)
	}
	return nil
}

// Delete forgets the session.
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, snapshotKey(sessionID)); err != nil {
		return apperrors.NewInternalError("failed to delete session snapshot", err)
	}
	return nil
}
