package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nutribot/nutribot/internal/storage"
)

const (
	conversationListLimit = 50
	messageListLimit      = 120
)

// conversationHandler serves the conversation and message listing routes.
type conversationHandler struct {
	store  *storage.Store
	logger *slog.Logger
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	conversations, err := h.store.ListConversations(r.Context(), userID, conversationListLimit)
	if err != nil {
		h.logger.Error("listing conversations failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := strconv.ParseInt(r.PathValue("conversation_id"), 10, 64)
	if err != nil || conversationID < 1 {
		writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversation_id must be a positive integer")
		return
	}

	// Unowned or unknown conversations come back as an empty list rather
	// than an existence oracle.
	messages, err := h.store.ListMessages(r.Context(), userID, conversationID, messageListLimit)
	if err != nil {
		h.logger.Error("listing messages failed", "error", err, "user", userID, "conversation", conversationID)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
