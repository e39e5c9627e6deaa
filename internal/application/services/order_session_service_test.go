package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicalorders/internal/adapters/cache"
	"github.com/zatekoja/clinicalorders/internal/adapters/events"
	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*entities.ExtractionRun
	err  error
}

func (r *fakeRunRepo) Create(ctx context.Context, run *entities.ExtractionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRunRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ExtractionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entities.ExtractionRun{}
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].SessionID == sessionID {
			out = append(out, r.runs[i])
		}
	}
	return out, nil
}

type fakeModel struct {
	available bool
	result    extraction.Result
	err       error
	calls     int
}

func (m *fakeModel) Available() bool { return m.available }

func (m *fakeModel) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error) {
	m.calls++
	return m.result, m.err
}

type blockingPattern struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPattern) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) extraction.Result {
	close(p.started)
	<-p.release
	return extraction.Result{Snapshot: previous}
}

func newTestService(t *testing.T, model ModelEngine) (*OrderSessionService, *fakeRunRepo, *events.MemoryEventBus) {
	t.Helper()
	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)

	runs := &fakeRunRepo{}
	bus := events.NewMemoryEventBus()
	t.Cleanup(func() { bus.Close() })

	svc := NewOrderSessionService(engine, model,
		cache.NewSnapshotStore(cache.NewMemoryAdapter(), time.Hour),
		WithEventBus(bus),
		WithRunRepository(runs),
		WithSessionClock(func() time.Time { return fixedNow }),
	)
	return svc, runs, bus
}

func TestOrderSessionService_ExtractAccumulatesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	svc, runs, _ := newTestService(t, nil)

	out, err := svc.Extract(ctx, "s1", "Start lisinopril 10mg daily.", "")
	require.NoError(t, err)
	assert.Equal(t, extraction.EnginePattern, out.Engine)
	require.Len(t, out.Snapshot.Medications, 1)
	assert.Equal(t, "Lisinopril", out.Snapshot.Medications[0].DrugName)
	assert.Equal(t, fixedNow, out.Snapshot.LastUpdated)
	assert.NotNil(t, out.Dropped)

	out, err = svc.Extract(ctx, "s1", "Start lisinopril 10mg daily. Actually stop the lisinopril.", "pattern")
	require.NoError(t, err)
	require.Len(t, out.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusCancelled, out.Snapshot.Medications[0].Status)

	stored, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, out.Snapshot, *stored)

	list, err := svc.ListRuns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, extraction.EnginePattern, list[0].Engine)
	assert.Equal(t, 1, list[0].Medications)
	assert.Empty(t, list[0].Error)
	assert.Len(t, runs.runs, 2)
}

func TestOrderSessionService_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Extract(ctx, "a", "Start lisinopril 10mg daily.", "")
	require.NoError(t, err)
	out, err := svc.Extract(ctx, "b", "Order a CBC.", "")
	require.NoError(t, err)

	assert.Empty(t, out.Snapshot.Medications)
	require.Len(t, out.Snapshot.Labs, 1)
}

func TestOrderSessionService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Extract(ctx, " ", "Start lisinopril 10mg daily.", "")
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))

	_, err = svc.Extract(ctx, "s1", "text", "regex")
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestOrderSessionService_ModelPath(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured model is unavailable", func(t *testing.T) {
		svc, runs, _ := newTestService(t, nil)
		_, err := svc.Extract(ctx, "s1", "Start lisinopril 10mg daily.", "model")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrModelUnavailable))
		require.Len(t, runs.runs, 1)
		assert.NotEmpty(t, runs.runs[0].Error)

		_, err = svc.Get(ctx, "s1")
		assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.TypeOf(err))
	})

	t.Run("malformed response leaves the snapshot untouched", func(t *testing.T) {
		model := &fakeModel{available: true, err: apperrors.NewMalformedModelResponseError("bad json", nil)}
		svc, _, _ := newTestService(t, model)

		_, err := svc.Extract(ctx, "s1", "Start lisinopril 10mg daily.", "")
		require.NoError(t, err)

		_, err = svc.Extract(ctx, "s1", "Start lisinopril 10mg daily. Order a CBC.", "model")
		assert.True(t, errors.Is(err, apperrors.ErrMalformedModelResponse))
		assert.Equal(t, 1, model.calls)

		stored, err := svc.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, stored.Medications, 1)
		assert.Empty(t, stored.Labs)
	})

	t.Run("model result is saved", func(t *testing.T) {
		snapshot := entities.OrdersSnapshot{
			Medications: []entities.MedicationOrder{{ID: "m", DrugName: "Metformin", Status: entities.OrderStatusNew}},
			Labs:        []entities.LabOrder{},
			LastUpdated: fixedNow,
		}
		model := &fakeModel{available: true, result: extraction.Result{Snapshot: snapshot}}
		svc, _, _ := newTestService(t, model)

		out, err := svc.Extract(ctx, "s1", "Start metformin 500 mg.", "MODEL")
		require.NoError(t, err)
		assert.Equal(t, extraction.EngineModel, out.Engine)
		assert.Equal(t, snapshot, out.Snapshot)
		assert.True(t, svc.ModelAvailable())
	})
}

func TestOrderSessionService_PublishesEvents(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := svc.Subscribe(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), "s1", "Order a CBC.", "")
	require.NoError(t, err)

	select {
	case event := <-updates:
		assert.Equal(t, entities.OrdersEventTypeSnapshotUpdated, event.EventType)
		assert.Equal(t, "s1", event.SessionID)
		require.NotNil(t, event.Snapshot)
		assert.Len(t, event.Snapshot.Labs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}

	require.NoError(t, svc.Reset(context.Background(), "s1"))
	select {
	case event := <-updates:
		assert.Equal(t, entities.OrdersEventTypeSessionReset, event.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("no reset event published")
	}

	_, err = svc.Get(context.Background(), "s1")
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.TypeOf(err))
}

func TestOrderSessionService_SingleFlight(t *testing.T) {
	pattern := &blockingPattern{started: make(chan struct{}), release: make(chan struct{})}
	store := cache.NewSnapshotStore(cache.NewMemoryAdapter(), 0)
	svc := NewOrderSessionService(pattern, nil, store)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Extract(context.Background(), "s1", "first", "")
		done <- err
	}()
	<-pattern.started

	_, err := svc.Extract(context.Background(), "s1", "second", "")
	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(err))
	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(svc.Reset(context.Background(), "s1")))

	close(pattern.release)
	require.NoError(t, <-done)

	pattern.started = make(chan struct{})
	pattern.release = make(chan struct{})
	close(pattern.release)
	_, err = svc.Extract(context.Background(), "s1", "third", "")
	assert.NoError(t, err)
}

func TestOrderSessionService_BestEffortCollaborators(t *testing.T) {
	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)

	runs := &fakeRunRepo{err: errors.New("db down")}
	svc := NewOrderSessionService(engine, nil,
		cache.NewSnapshotStore(cache.NewMemoryAdapter(), 0),
		WithRunRepository(runs),
		WithEventBus(failingBus{}),
	)

	out, err := svc.Extract(context.Background(), "s1", "Start lisinopril 10mg daily.", "")
	require.NoError(t, err)
	assert.Len(t, out.Snapshot.Medications, 1)
}

func TestOrderSessionService_ListRunsWithoutRepository(t *testing.T) {
	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)
	svc := NewOrderSessionService(engine, nil, cache.NewSnapshotStore(cache.NewMemoryAdapter(), 0))

	runs, err := svc.ListRuns(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = svc.Subscribe(context.Background(), "s1")
	assert.Error(t, err)
}

type failingBus struct{}

func (failingBus) Publish(ctx context.Context, channel string, event *entities.OrdersEvent) error {
	return errors.New("bus down")
}

func (failingBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.OrdersEvent, error) {
	return nil, errors.New("bus down")
}

func (failingBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (failingBus) Close() error { return nil }

var _ providers.EventBus = failingBus{}

type sharedLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func (l *sharedLocker) TryLock(ctx context.Context, sessionID string) (providers.Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[sessionID] {
		return nil, false, nil
	}
	l.held[sessionID] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, sessionID)
		l.released++
		return nil
	}, true, nil
}

func TestOrderSessionService_SharedLockAcrossInstances(t *testing.T) {
	locker := &sharedLocker{held: map[string]bool{}}
	store := cache.NewSnapshotStore(cache.NewMemoryAdapter(), 0)

	pattern := &blockingPattern{started: make(chan struct{}), release: make(chan struct{})}
	first := NewOrderSessionService(pattern, nil, store, WithSessionLocker(locker))

	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)
	second := NewOrderSessionService(engine, nil, store, WithSessionLocker(locker))

	done := make(chan error, 1)
	go func() {
		_, err := first.Extract(context.Background(), "s1", "Refill all medications.", "")
		done <- err
	}()
	<-pattern.started

	_, err = second.Extract(context.Background(), "s1", "Refill all medications.", "")
	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(err))

	_, err = second.Extract(context.Background(), "s2", "Order a CBC.", "")
	assert.NoError(t, err)

	close(pattern.release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, locker.released)

	_, err = second.Extract(context.Background(), "s1", "Order a CBC.", "")
	assert.NoError(t, err)
}

func TestOrderSessionService_LockFailure(t *testing.T) {
	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)
	locker := &sharedLocker{held: map[string]bool{}, err: apperrors.NewInternalError("redis down", nil)}
	svc := NewOrderSessionService(engine, nil, cache.NewSnapshotStore(cache.NewMemoryAdapter(), 0), WithSessionLocker(locker))

	_, err = svc.Extract(context.Background(), "s1", "Order a CBC.", "")
	assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(err))
	assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(svc.Reset(context.Background(), "s1")))
}
