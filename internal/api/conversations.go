package api

import (
	"net/http"

	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/log"
)

type conversationHandler struct {
	store  *conversation.Store
	trace  *calltrace.Log
	logger log.Logger
}

type conversationResponse struct {
	Conversation conversation.Info      `json:"conversation"`
	Messages     []conversation.Message `json:"messages"`
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	info, err := h.store.Info(id)
	if err != nil {
		if conversation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("loading conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	msgs, err := h.store.Messages(id)
	if err != nil {
		h.logger.Error("loading messages", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{Conversation: info, Messages: msgs}, h.logger)
}

type traceResponse struct {
	ConversationID string           `json:"conversation_id"`
	Entries        []calltrace.Entry `json:"entries"`
}

func (h *conversationHandler) getTrace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// The trace is empty rather than missing for unknown conversations;
	// check the store so unknown IDs still 404.
	if _, err := h.store.Info(id); err != nil {
		if conversation.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("loading conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	entries := h.trace.ForConversation(id)
	if entries == nil {
		entries = []calltrace.Entry{}
	}
	writeJSON(w, http.StatusOK, traceResponse{ConversationID: id, Entries: entries}, h.logger)
}
