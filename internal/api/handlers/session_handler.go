package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/clinicalorders/internal/application/services"
	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
)

// maxBodyBytes bounds an extract request body.
const maxBodyBytes = 1 << 20

// SessionService is what the session handler needs from the application layer.
type SessionService interface {
	Extract(ctx context.Context, sessionID, transcript, engine string) (*services.ExtractOutcome, error)
	Get(ctx context.Context, sessionID string) (*entities.OrdersSnapshot, error)
	Reset(ctx context.Context, sessionID string) error
	ListRuns(ctx context.Context, sessionID string, limit int) ([]*entities.ExtractionRun, error)
	ModelAvailable() bool
}

// SessionHandler handles dictation session requests
type SessionHandler struct {
	service SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// ExtractRequest is the body of an extract call. The transcript is the full
// dictation so far, not a delta.
type ExtractRequest struct {
	Transcript string `json:"transcript"`
	Engine     string `json:"engine,omitempty"`
}

// ExtractResponse is returned by an extract call.
type ExtractResponse struct {
	SessionID  string                  `json:"sessionId"`
	Engine     string                  `json:"engine"`
	Snapshot   entities.OrdersSnapshot `json:"snapshot"`
	Dropped    []entities.Drop         `json:"dropped"`
	DurationMs int64                   `json:"durationMs"`
}

// Extract handles POST /api/sessions/{id}/extract
func (h *SessionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := observability.WithSessionID(r.Context(), sessionID)
	out, err := h.service.Extract(ctx, sessionID, req.Transcript, req.Engine)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ExtractResponse{
		SessionID:  out.SessionID,
		Engine:     out.Engine,
		Snapshot:   out.Snapshot,
		Dropped:    out.Dropped,
		DurationMs: out.Duration.Milliseconds(),
	})
}

// GetOrders handles GET /api/sessions/{id}/orders
func (h *SessionHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	snapshot, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, snapshot)
}

// Reset handles DELETE /api/sessions/{id}
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	if err := h.service.Reset(r.Context(), sessionID); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRuns handles GET /api/sessions/{id}/runs?limit=N
func (h *SessionHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(r.Context(), sessionID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
