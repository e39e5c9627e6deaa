package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Pinger checks one infrastructure dependency.
type Pinger func(ctx context.Context) error

// HealthHandler reports the service and dependency status.
type HealthHandler struct {
	pingers        map[string]Pinger
	modelAvailable func() bool
	streamClients  func() int
	timeout        time.Duration
}

// NewHealthHandler creates a health handler. Any argument may be nil.
func NewHealthHandler(pingers map[string]Pinger, modelAvailable func() bool, streamClients func() int) *HealthHandler {
	if pingers == nil {
		pingers = map[string]Pinger{}
	}
	return &HealthHandler{
		pingers:        pingers,
		modelAvailable: modelAvailable,
		streamClients:  streamClients,
		timeout:        2 * time.Second,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.pingers[name](ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]interface{}{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	}
	if h.modelAvailable != nil {
		body["model_available"] = h.modelAvailable()
	}
	if h.streamClients != nil {
		body["stream_clients"] = h.streamClients()
	}

	respondWithJSON(w, code, body)
}
