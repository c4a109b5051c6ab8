// Package chat orchestrates one chat turn: profile resolution, conversation
// bookkeeping, image screening, plan generation, and persistence of the
// resulting messages, tool events and meal log.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nutribot/nutribot/internal/coach"
	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/storage"
)

// historyLimit bounds the persisted turns replayed into the engine.
const historyLimit = 16

// titleLimit bounds the auto-generated conversation title.
const titleLimit = 80

// ErrImageRejected indicates the uploaded image is not food related.
var ErrImageRejected = errors.New("the uploaded image doesn't appear to be food-related; " +
	"please share a photo of a meal or food item")

// Request is one validated chat turn.
type Request struct {
	UserID             string   `json:"user_id"`
	UserName           string   `json:"user_name,omitempty"`
	ConversationID     int64    `json:"conversation_id,omitempty"`
	Message            string   `json:"message,omitempty"`
	ImageURL           string   `json:"image_url,omitempty"`
	Goals              []string `json:"goals,omitempty"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	Medications        []string `json:"medications,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// Response is the result of one chat turn.
type Response struct {
	ConversationID    int64                `json:"conversation_id"`
	ResponseMessageID int64                `json:"response_message_id"`
	Plan              *coach.CoachResponse `json:"response"`
}

// imageClassifier is the slice of the model gateway the service needs
// directly.
type imageClassifier interface {
	Enabled() bool
	ClassifyImage(ctx context.Context, imageURL string) (string, error)
}

// planBuilder is the slice of the coaching engine the service needs.
type planBuilder interface {
	BuildPlan(ctx context.Context, req coach.PlanRequest) (*coach.CoachResponse, []coach.ToolCallRecord)
}

// Service handles chat turns end to end.
type Service struct {
	store      *storage.Store
	engine     planBuilder
	classifier imageClassifier
	logger     log.Logger
}

// NewService creates a chat service.
func NewService(store *storage.Store, engine planBuilder, classifier imageClassifier, logger log.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Service{
		store:      store,
		engine:     engine,
		classifier: classifier,
		logger:     logger,
	}, nil
}

// Handle runs one chat turn. Auxiliary persistence failures (tool events,
// meal logs) are logged but do not discard the generated plan.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	if _, err := s.store.GetOrCreateUser(ctx, req.UserID, req.UserName); err != nil {
		return nil, err
	}

	profile, err := s.resolveProfile(ctx, req)
	if err != nil {
		return nil, err
	}

	title := req.Message
	if title == "" {
		title = "Meal analysis"
	}
	if len(title) > titleLimit {
		title = title[:titleLimit]
	}

	conversation, err := s.store.EnsureConversation(ctx, req.UserID, req.ConversationID, title)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.ListMessages(ctx, req.UserID, conversation.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	history := make([]coach.HistoryMessage, 0, len(prior))
	for _, msg := range prior {
		history = append(history, coach.HistoryMessage{Role: msg.Role, Content: msg.Content})
	}

	// Screen the image before anything is persisted, so a rejected upload
	// leaves no trace in the conversation.
	if req.ImageURL != "" && s.classifier.Enabled() {
		classification, err := s.classifier.ClassifyImage(ctx, req.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("classifying image: %w", err)
		}
		if classification != "food" {
			return nil, ErrImageRejected
		}
	}

	userContent := req.Message
	if userContent == "" {
		userContent = "[image only message]"
	}
	userMeta, _ := json.Marshal(map[string]any{
		"goals":               profile.Goals,
		"dietary_preferences": profile.DietaryPreferences,
		"allergies":           profile.Allergies,
		"medications":         profile.Medications,
	})
	if _, err := s.store.AddMessage(ctx, req.UserID, conversation.ID,
		storage.RoleUser, userContent, req.ImageURL, userMeta); err != nil {
		return nil, err
	}

	plan, toolEvents := s.engine.BuildPlan(ctx, coach.PlanRequest{
		UserID:   req.UserID,
		Message:  req.Message,
		ImageURL: req.ImageURL,
		Profile: coach.ProfileContext{
			Goals:              profile.Goals,
			DietaryPreferences: profile.DietaryPreferences,
			Allergies:          profile.Allergies,
			Medications:        profile.Medications,
			Notes:              profile.Notes,
		},
		History:    history,
		Generation: coach.DefaultGenerationConfig(),
	})

	for _, event := range toolEvents {
		args, err := json.Marshal(event.Arguments)
		if err != nil {
			args = nil
		}
		if err := s.store.AddToolEvent(ctx, conversation.ID, event.ToolName, args, event.ResultPreview); err != nil {
			s.logger.Error("recording tool event failed", "tool", event.ToolName, "error", err)
		}
	}

	planMeta, _ := json.Marshal(plan)
	assistantMsg, err := s.store.AddMessage(ctx, req.UserID, conversation.ID,
		storage.RoleAssistant, assistantContent(plan), "", planMeta)
	if err != nil {
		return nil, err
	}

	if req.Message != "" || req.ImageURL != "" {
		analysis, _ := json.Marshal(map[string]any{
			"summary":          plan.Summary,
			"priorities":       plan.Priorities,
			"safety_watchouts": plan.SafetyWatchouts,
		})
		if err := s.store.AddMealLog(ctx, req.UserID, conversation.ID,
			req.Message, req.ImageURL, analysis); err != nil {
			s.logger.Error("recording meal log failed", "error", err)
		}
	}

	return &Response{
		ConversationID:    conversation.ID,
		ResponseMessageID: assistantMsg.ID,
		Plan:              plan,
	}, nil
}

// resolveProfile merges request-supplied profile fields over the stored
// profile. Absent fields keep their stored values.
func (s *Service) resolveProfile(ctx context.Context, req Request) (storage.Profile, error) {
	profile, err := s.store.EnsureProfile(ctx, req.UserID)
	if err != nil {
		return storage.Profile{}, err
	}

	patch := storage.ProfilePatch{
		Goals:              emptyToNil(req.Goals),
		DietaryPreferences: emptyToNil(req.DietaryPreferences),
		Allergies:          emptyToNil(req.Allergies),
		Medications:        emptyToNil(req.Medications),
	}
	if req.UserName != "" {
		patch.DisplayName = &req.UserName
	}
	if req.Notes != "" {
		patch.Notes = &req.Notes
	}

	if patch.Goals == nil && patch.DietaryPreferences == nil && patch.Allergies == nil &&
		patch.Medications == nil && patch.Notes == nil && patch.DisplayName == nil {
		return profile, nil
	}

	return s.store.UpsertProfile(ctx, req.UserID, patch)
}

// emptyToNil treats an empty request list as "not provided" so chat turns
// never wipe stored profile lists by omission.
func emptyToNil(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return list
}

// assistantContent renders the plan as plain text so conversation history
// stays useful to the model on later turns.
func assistantContent(plan *coach.CoachResponse) string {
	content := plan.Summary
	if len(plan.Priorities) > 0 {
		lines := make([]string, 0, len(plan.Priorities))
		for _, p := range plan.Priorities {
			lines = append(lines, fmt.Sprintf("- %s: %s", p.Title, p.Action))
		}
		content += "\n\nPriorities:\n" + strings.Join(lines, "\n")
	}
	return content
}
