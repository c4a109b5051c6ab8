package storage

import (
	"encoding/json"
	"time"
)

// User identifies a coaching client by an opaque external ID chosen by the
// caller.
type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile holds a user's coaching profile. List fields are stored as JSON
// text columns.
type Profile struct {
	UserID             int64     `json:"-"`
	Goals              []string  `json:"goals"`
	DietaryPreferences []string  `json:"dietary_preferences"`
	Allergies          []string  `json:"allergies"`
	Medications        []string  `json:"medications"`
	Notes              string    `json:"notes,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ProfilePatch is a partial profile update. Nil slices and pointers leave
// the stored value unchanged; empty slices overwrite.
type ProfilePatch struct {
	DisplayName        *string
	Goals              []string
	DietaryPreferences []string
	Allergies          []string
	Medications        []string
	Notes              *string
}

// Conversation is one coaching thread belonging to a single user.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a conversation.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	UserID         int64           `json:"-"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ImageURL       string          `json:"image_url,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToolEvent is the audit record of a single tool invocation during plan
// generation.
type ToolEvent struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	ToolName       string          `json:"tool_name"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	ResultPreview  string          `json:"result_preview"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MealLog records a meal the user described or photographed, with the
// nutrition analysis attached when one was produced.
type MealLog struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"-"`
	ConversationID *int64          `json:"conversation_id,omitempty"`
	MealText       string          `json:"meal_text,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
