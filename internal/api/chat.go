package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/model"
	"github.com/evscmms/assistant/internal/orchestrator"
)

// maxChatBodyBytes caps the request body; chat messages are short.
const maxChatBodyBytes = 64 * 1024

// TurnRunner runs one conversation turn. *orchestrator.Orchestrator
// satisfies it.
type TurnRunner interface {
	Turn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error)
}

type chatHandler struct {
	runner TurnRunner
	logger log.Logger
}

type chatRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Message        string         `json:"message"`
	Context        map[string]any `json:"context,omitempty"`
}

func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON", h.logger)
		return
	}

	resp, err := h.runner.Turn(r.Context(), orchestrator.TurnRequest{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        req.Message,
		Context:        req.Context,
	})
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// writeTurnError maps turn failures onto HTTP statuses. Absorbed call
// failures never reach here; these are the turn-fatal cases.
func (h *chatHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
	case errors.Is(err, orchestrator.ErrConversationBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "conversation_busy", "a turn is already running for this conversation", h.logger)
	case errors.Is(err, orchestrator.ErrMaxIterations):
		writeError(w, http.StatusBadGateway, "max_iterations", "the model did not converge on an answer", h.logger)
	case errors.Is(err, model.ErrModelUnavailable), errors.Is(err, model.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "the model is temporarily unavailable", h.logger)
	case errors.Is(err, model.ErrMalformedReply):
		writeError(w, http.StatusBadGateway, "malformed_reply", "the model returned an unusable reply", h.logger)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away or gave up; 499-style, but stdlib has no
		// constant so a plain 408 fits.
		writeError(w, http.StatusRequestTimeout, "request_cancelled", "the request was cancelled", h.logger)
	default:
		h.logger.Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
