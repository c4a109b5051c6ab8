package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/nutribot/nutribot/internal/chat"
	"github.com/nutribot/nutribot/internal/llm"
)

// Request body limits. The model prompt budget is the real ceiling; these
// bounds just keep obviously abusive payloads out before any work happens.
const (
	maxChatBodyBytes = 1 << 20 // 1 MiB
	maxMessageLen    = 4000
	maxNotesLen      = 2000
	maxListItems     = 20
	maxListItemLen   = 100
	maxUserIDLen     = 128
)

// imageURLPattern matches only URLs the upload endpoint itself hands out:
// a 32-hex-char name under /uploads/ with a short extension.
var imageURLPattern = regexp.MustCompile(`^/uploads/[a-f0-9]{32}\.\w{2,5}$`)

// chatHandler serves POST /api/v1/chat.
type chatHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if msg, ok := validateChatRequest(req); !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	resp, err := h.service.Handle(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrImageRejected):
			writeError(w, http.StatusBadRequest, "image_rejected", err.Error())
		case errors.Is(err, llm.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "model_unavailable", "model backend is not configured")
		default:
			h.logger.Error("chat turn failed", "error", err, "user", req.UserID)
			writeError(w, http.StatusInternalServerError, "chat_failed", "failed to process chat turn")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// validateChatRequest enforces the request shape before any persistence.
func validateChatRequest(req chat.Request) (string, bool) {
	if req.UserID == "" || len(req.UserID) > maxUserIDLen {
		return fmt.Sprintf("user_id is required and must be at most %d characters", maxUserIDLen), false
	}
	if req.Message == "" && req.ImageURL == "" {
		return "at least one of message or image_url is required", false
	}
	if len(req.Message) > maxMessageLen {
		return fmt.Sprintf("message must be at most %d characters", maxMessageLen), false
	}
	if req.ImageURL != "" && !imageURLPattern.MatchString(req.ImageURL) {
		return "image_url must reference a previously uploaded image", false
	}
	if req.ConversationID < 0 {
		return "conversation_id must be a positive integer", false
	}
	if len(req.Notes) > maxNotesLen {
		return fmt.Sprintf("notes must be at most %d characters", maxNotesLen), false
	}

	lists := map[string][]string{
		"goals":               req.Goals,
		"dietary_preferences": req.DietaryPreferences,
		"allergies":           req.Allergies,
		"medications":         req.Medications,
	}
	for name, list := range lists {
		if len(list) > maxListItems {
			return fmt.Sprintf("%s must have at most %d items", name, maxListItems), false
		}
		for _, item := range list {
			if len(item) > maxListItemLen {
				return fmt.Sprintf("%s items must be at most %d characters", name, maxListItemLen), false
			}
		}
	}

	return "", true
}
