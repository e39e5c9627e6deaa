package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/domain/repositories"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

// PatternEngine is the deterministic extraction path.
type PatternEngine interface {
	Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) extraction.Result
}

// ModelEngine is the language-model extraction path.
type ModelEngine interface {
	Available() bool
	Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error)
}

// MaxTranscriptChars bounds a single extraction request.
const MaxTranscriptChars = 200_000

// ExtractOutcome is what one extraction call returns to the caller.
type ExtractOutcome struct {
	SessionID string                  `json:"sessionId"`
	Engine    string                  `json:"engine"`
	Snapshot  entities.OrdersSnapshot `json:"snapshot"`
	Dropped   []entities.Drop         `json:"dropped"`
	Duration  time.Duration           `json:"-"`
}

// OrderSessionService owns the previous snapshot of each dictation session and
// serializes extraction calls per session.
type OrderSessionService struct {
	pattern PatternEngine
	model   ModelEngine
	store   providers.SnapshotStore
	bus     providers.EventBus
	runs    repositories.ExtractionRunRepository
	metrics *observability.Metrics
	clock   func() time.Time
	locker  providers.SessionLocker
}

// SessionOption configures an OrderSessionService.
type SessionOption func(*OrderSessionService)

// WithEventBus publishes snapshot updates to bus.
func WithEventBus(bus providers.EventBus) SessionOption {
	return func(s *OrderSessionService) { s.bus = bus }
}

// WithRunRepository records an audit row per extraction call.
func WithRunRepository(runs repositories.ExtractionRunRepository) SessionOption {
	return func(s *OrderSessionService) { s.runs = runs }
}

// WithMetrics counts conflicts and collaborator failures.
func WithMetrics(metrics *observability.Metrics) SessionOption {
	return func(s *OrderSessionService) { s.metrics = metrics }
}

// WithSessionLocker replaces the in-process lock, e.g. with a Redis lock shared by
// several instances.
func WithSessionLocker(locker providers.SessionLocker) SessionOption {
	return func(s *OrderSessionService) { s.locker = locker }
}

// WithSessionClock overrides the snapshot timestamp source.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *OrderSessionService) { s.clock = clock }
}

// NewOrderSessionService creates a new session service. model may be nil.
func NewOrderSessionService(pattern PatternEngine, model ModelEngine, store providers.SnapshotStore, opts ...SessionOption) *OrderSessionService {
	s := &OrderSessionService{
		pattern: pattern,
		model:   model,
		store:   store,
		clock:   func() time.Time { return time.Now().UTC() },
		locker:  newLocalLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelAvailable reports whether the model engine can be selected.
func (s *OrderSessionService) ModelAvailable() bool {
	return s.model != nil && s.model.Available()
}

// Extract runs one extraction call for sessionID against its stored snapshot. A call
// that arrives while the session is still extracting fails with a conflict; the next
// call carries the longer transcript anyway.
func (s *OrderSessionService) Extract(ctx context.Context, sessionID, transcript, engine string) (*ExtractOutcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.NewValidationError("session id is required")
	}
	if len(transcript) > MaxTranscriptChars {
		return nil, apperrors.NewValidationError("transcript is too long")
	}
	engine, err := normalizeEngine(engine)
	if err != nil {
		return nil, err
	}

	ctx = observability.WithSessionID(ctx, sessionID)
	ctx, span := observability.StartSpan(ctx, "OrderSessionService.Extract")
	defer span.End()
	logger := observability.LoggerFromContext(ctx)

	unlock, err := s.acquire(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	defer s.release(ctx, unlock)

	previous, err := s.previous(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	at := s.clock()
	var res extraction.Result
	switch engine {
	case extraction.EngineModel:
		if !s.ModelAvailable() {
			err = apperrors.NewModelUnavailableError("no language model configured", nil)
			break
		}
		res, err = s.model.Run(ctx, transcript, previous, at)
	default:
		res = s.pattern.Run(ctx, transcript, previous, at)
	}
	elapsed := time.Since(start)

	s.recordRun(ctx, sessionID, engine, transcript, res, elapsed, err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if err := s.store.Save(ctx, sessionID, res.Snapshot); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	snapshot := res.Snapshot
	s.publish(ctx, entities.NewOrdersEvent(sessionID, entities.OrdersEventTypeSnapshotUpdated, engine, &snapshot))

	logger.Info().
		Str("engine", engine).
		Int("medications", len(res.Snapshot.Medications)).
		Int("labs", len(res.Snapshot.Labs)).
		Int("dropped", len(res.Dropped)).
		Dur("duration", elapsed).
		Msg("extraction completed")

	dropped := res.Dropped
	if dropped == nil {
		dropped = []entities.Drop{}
	}
	return &ExtractOutcome{
		SessionID: sessionID,
		Engine:    engine,
		Snapshot:  res.Snapshot,
		Dropped:   dropped,
		Duration:  elapsed,
	}, nil
}

// Get returns the stored snapshot of a session.
func (s *OrderSessionService) Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error) {
	snapshot, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apperrors.NewNotFoundError("session not found")
	}
	return snapshot, nil
}

// Reset forgets a session so the next call starts from an empty snapshot.
func (s *OrderSessionService) Reset(ctx context.Context, sessionID string) error {
	ctx = observability.WithSessionID(ctx, sessionID)
	unlock, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer s.release(ctx, unlock)

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.publish(ctx, entities.NewOrdersEvent(sessionID, entities.OrdersEventTypeSessionReset, "", nil))
	observability.LoggerFromContext(ctx).Info().Msg("session reset")
	return nil
}

// ListRuns returns the audit trail of a session, newest first. Without an audit
// repository the trail is empty.
func (s *OrderSessionService) ListRuns(ctx context.Context, sessionID string, limit int) ([]*entities.ExtractionRun, error) {
	if s.runs == nil {
		return []*entities.ExtractionRun{}, nil
	}
	return s.runs.ListBySession(ctx, sessionID, limit)
}

// Subscribe streams snapshot updates of a session until ctx is done.
func (s *OrderSessionService) Subscribe(ctx context.Context, sessionID string) (<-chan *entities.OrdersEvent, error) {
	if s.bus == nil {
		return nil, apperrors.NewInternalError("event streaming is not configured", nil)
	}
	return s.bus.Subscribe(ctx, providers.GetSessionChannel(sessionID))
}

func (s *OrderSessionService) previous(ctx context.Context, sessionID string) (entities.OrdersSnapshot, error) {
	stored, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return entities.OrdersSnapshot{}, err
	}
	if stored == nil {
		return entities.OrdersSnapshot{
			Medications: []entities.MedicationOrder{},
			Labs:        []entities.LabOrder{},
		}, nil
	}
	return *stored, nil
}

func (s *OrderSessionService) acquire(ctx context.Context, sessionID string) (providers.Unlock, error) {
	unlock, ok, err := s.locker.TryLock(ctx, sessionID)
	if err != nil {
		observability.RecordStoreError(ctx, s.metrics, "session_lock")
		return nil, err
	}
	if !ok {
		observability.RecordSessionConflict(ctx, s.metrics)
		return nil, apperrors.NewConflictError("an extraction is already running for this session")
	}
	return unlock, nil
}

// release runs on a fresh context so a cancelled request still frees the session.
func (s *OrderSessionService) release(ctx context.Context, unlock providers.Unlock) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := unlock(releaseCtx); err != nil {
		observability.RecordStoreError(ctx, s.metrics, "session_lock")
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to release session lock")
	}
}

// localLocker is the single-process lock used when no shared locker is configured.
type localLocker struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{busy: make(map[string]struct{})}
}

func (l *localLocker) TryLock(ctx context.Context, sessionID string) (providers.Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[sessionID]; ok {
		return nil, false, nil
	}
	l.busy[sessionID] = struct{}{}
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.busy, sessionID)
		l.mu.Unlock()
		return nil
	}, true, nil
}

// publish is best effort: a subscriber outage must not fail the extraction.
func (s *OrderSessionService) publish(ctx context.Context, event *entities.OrdersEvent) {
	if s.bus == nil {
		return
	}
	for _, channel := range []string{providers.GetSessionChannel(event.SessionID), providers.EventChannelOrdersUpdates} {
		if err := s.bus.Publish(ctx, channel, event); err != nil {
			observability.RecordStoreError(ctx, s.metrics, "event_bus")
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("channel", channel).Msg("failed to publish orders event")
		}
	}
}

func (s *OrderSessionService) recordRun(ctx context.Context, sessionID, engine, transcript string, res extraction.Result, elapsed time.Duration, runErr error) {
	if s.runs == nil {
		return
	}
	run := &entities.ExtractionRun{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Engine:          engine,
		TranscriptChars: len(transcript),
		Medications:     len(res.Snapshot.Medications),
		Labs:            len(res.Snapshot.Labs),
		Dropped:         len(res.Dropped),
		DropReasons:     entities.DistinctDropReasons(res.Dropped),
		DurationMs:      elapsed.Milliseconds(),
		CreatedAt:       s.clock(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.runs.Create(ctx, run); err != nil {
		observability.RecordStoreError(ctx, s.metrics, "extraction_runs")
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to record extraction run")
	}
}

func normalizeEngine(engine string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", extraction.EnginePattern:
		return extraction.EnginePattern, nil
	case extraction.EngineModel:
		return extraction.EngineModel, nil
	default:
		return "", apperrors.NewValidationError("engine must be \"pattern\" or \"model\"")
	}
}
