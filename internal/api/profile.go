package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nutribot/nutribot/internal/storage"
)

// profileHandler serves GET/PUT /api/v1/users/{user_id}/profile.
type profileHandler struct {
	store  *storage.Store
	logger *slog.Logger
}

func (h *profileHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.store.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("loading profile failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "profile_failed", "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// profileUpdate is the PUT body. Omitted fields keep their stored values;
// empty lists overwrite.
type profileUpdate struct {
	DisplayName        *string  `json:"display_name,omitempty"`
	Goals              []string `json:"goals,omitempty"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	Medications        []string `json:"medications,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
}

func (h *profileHandler) put(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var update profileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if msg, ok := validateProfileUpdate(update); !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	if _, err := h.store.GetOrCreateUser(r.Context(), userID, ""); err != nil {
		h.logger.Error("ensuring user failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "profile_failed", "failed to update profile")
		return
	}

	profile, err := h.store.UpsertProfile(r.Context(), userID, storage.ProfilePatch{
		DisplayName:        update.DisplayName,
		Goals:              update.Goals,
		DietaryPreferences: update.DietaryPreferences,
		Allergies:          update.Allergies,
		Medications:        update.Medications,
		Notes:              update.Notes,
	})
	if err != nil {
		h.logger.Error("updating profile failed", "error", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "profile_failed", "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func validateProfileUpdate(update profileUpdate) (string, bool) {
	if update.Notes != nil && len(*update.Notes) > maxNotesLen {
		return fmt.Sprintf("notes must be at most %d characters", maxNotesLen), false
	}

	lists := map[string][]string{
		"goals":               update.Goals,
		"dietary_preferences": update.DietaryPreferences,
		"allergies":           update.Allergies,
		"medications":         update.Medications,
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

// pathUserID extracts and validates the {user_id} path segment.
func pathUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("user_id")
	if userID == "" || len(userID) > maxUserIDLen {
		writeError(w, http.StatusBadRequest, "invalid_user_id",
			fmt.Sprintf("user_id is required and must be at most %d characters", maxUserIDLen))
		return "", false
	}
	return userID, true
}
