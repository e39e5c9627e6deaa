package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
)

// MockEventBus for testing
type MockEventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *entities.OrdersEvent
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{subscribers: make(map[string][]chan *entities.OrdersEvent)}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.OrdersEvent) error {
	m.mu.RLock()
	channels := append([]chan *entities.OrdersEvent(nil), m.subscribers[channel]...)
	m.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.OrdersEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.OrdersEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

func (m *MockEventBus) Close() error { return nil }

func (m *MockEventBus) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

type staticSnapshots struct{ snapshot *entities.OrdersSnapshot }

func (s staticSnapshots) Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error) {
	return s.snapshot, nil
}

func TestSSEHandler_StreamSessionUpdates(t *testing.T) {
	t.Run("sends connect, initial snapshot and updates", func(t *testing.T) {
		bus := NewMockEventBus()
		handler := NewSSEHandler(bus, staticSnapshots{snapshot: sampleSnapshot()})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/stream/sessions/s1", nil)
		req.SetPathValue("id", "s1")
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			handler.StreamSessionUpdates(w, req)
			close(done)
		}()

		channel := providers.GetSessionChannel("s1")
		assert.Eventually(t, func() bool { return bus.subscriberCount(channel) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

		event := entities.NewOrdersEvent("s1", entities.OrdersEventTypeSessionReset, "", nil)
		_ = bus.Publish(context.Background(), channel, event)
		time.Sleep(200 * time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not exit after cancel")
		}

		result := w.Result()
		assert.Equal(t, "text/event-stream", result.Header.Get("Content-Type"))
		assert.Equal(t, "no-cache", result.Header.Get("Cache-Control"))

		body := w.Body.String()
		assert.True(t, strings.Index(body, "event: connected") < strings.Index(body, "event: snapshot_updated"))
		assert.Contains(t, body, "Metformin")
		assert.Contains(t, body, "event: session_reset")
		assert.Equal(t, 0, handler.GetClientCount())
	})

	t.Run("missing session id", func(t *testing.T) {
		handler := NewSSEHandler(NewMockEventBus(), nil)
		w := httptest.NewRecorder()
		handler.StreamSessionUpdates(w, httptest.NewRequest(http.MethodGet, "/api/stream/sessions/", nil))
		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})
}
