package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
)

const heartbeatInterval = 30 * time.Second

// SnapshotReader returns the current snapshot of a session.
type SnapshotReader interface {
	Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error)
}

// SSEHandler handles Server-Sent Events for live session order updates
type SSEHandler struct {
	eventBus  providers.EventBus
	snapshots SnapshotReader
	clients   map[string]map[chan *entities.OrdersEvent]bool // channel -> clients
	mu        sync.RWMutex
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler. snapshots may be nil, in which case no
// initial snapshot is sent on connect.
func NewSSEHandler(eventBus providers.EventBus, snapshots SnapshotReader) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		snapshots: snapshots,
		clients:   make(map[string]map[chan *entities.OrdersEvent]bool),
		heartbeat: heartbeatInterval,
	}
}

// StreamSessionUpdates handles SSE connections for one dictation session
// GET /api/stream/sessions/{id}
func (h *SSEHandler) StreamSessionUpdates(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := observability.WithSessionID(r.Context(), sessionID)
	logger := observability.LoggerFromContext(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan *entities.OrdersEvent, 10)
	channel := providers.GetSessionChannel(sessionID)

	h.registerClient(channel, clientChan)
	defer h.unregisterClient(channel, clientChan)

	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe to session channel")
		return
	}

	h.sendEvent(w, "connected", map[string]interface{}{
		"session_id": sessionID,
		"timestamp":  time.Now(),
	})
	if h.snapshots != nil {
		if snapshot, err := h.snapshots.Get(ctx, sessionID); err == nil && snapshot != nil {
			h.sendEvent(w, string(entities.OrdersEventTypeSnapshotUpdated), entities.NewOrdersEvent(sessionID, entities.OrdersEventTypeSnapshotUpdated, "", snapshot))
		}
	}
	flusher.Flush()

	go h.forwardEvents(ctx, eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("client disconnected from session stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event := <-clientChan:
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// forwardEvents forwards events from the event bus to a client channel
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.OrdersEvent, clientChan chan<- *entities.OrdersEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- event:
			default:
				// client too slow; the next snapshot supersedes this one
			}
		}
	}
}

func (h *SSEHandler) registerClient(channel string, clientChan chan *entities.OrdersEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[channel] == nil {
		h.clients[channel] = make(map[chan *entities.OrdersEvent]bool)
	}
	h.clients[channel][clientChan] = true
}

func (h *SSEHandler) unregisterClient(channel string, clientChan chan *entities.OrdersEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[channel]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, channel)
		}
	}
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Warn().Err(err).Str("event", eventType).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
