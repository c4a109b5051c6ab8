package api

import (
	"log/slog"
	"net/http"

	"github.com/nutribot/nutribot/internal/memory"
)

const memoryRecentLimit = 20

// memoryHandler serves GET /api/v1/memory/{user_id}: the effective key/value
// snapshot plus the most recent raw entries.
type memoryHandler struct {
	store  *memory.Store
	logger *slog.Logger
}

func (h *memoryHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.store.Snapshot(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading memory snapshot failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "memory_failed", "failed to load memory")
		return
	}

	recent, err := h.store.Recent(r.Context(), userID, memoryRecentLimit)
	if err != nil {
		h.logger.Error("loading recent memory failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "memory_failed", "failed to load memory")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snapshot,
		"recent":   recent,
	})
}
