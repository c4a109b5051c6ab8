// Package coach implements the plan-generation engine: crisis screening, a
// bounded tool-calling loop against the model gateway, structured plan
// output, and a deterministic fallback when no model is reachable.
package coach

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Generation bounds mirror the limits enforced at the API boundary.
const (
	MinOutputTokens = 100
	MaxOutputTokens = 4000
)

var (
	// ErrInvalidTemperature indicates temperature is outside [0, 2].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates top_p is outside (0, 1].
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidMaxOutputTokens indicates the token budget is out of range.
	ErrInvalidMaxOutputTokens = errors.New("invalid max output tokens")
)

// GenerationConfig carries per-request sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// DefaultGenerationConfig returns the sampling parameters used when the
// request does not override them.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.4,
		TopP:            0.9,
		MaxOutputTokens: 1200,
	}
}

// Validate checks the sampling parameters against their allowed ranges.
func (g GenerationConfig) Validate() error {
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("%w: must be between 0 and 2, got %g", ErrInvalidTemperature, g.Temperature)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("%w: must be in (0, 1], got %g", ErrInvalidTopP, g.TopP)
	}
	if g.MaxOutputTokens < MinOutputTokens || g.MaxOutputTokens > MaxOutputTokens {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidMaxOutputTokens, MinOutputTokens, MaxOutputTokens, g.MaxOutputTokens)
	}
	return nil
}

// PlanPriority is one actionable item of a coaching plan.
type PlanPriority struct {
	Title        string `json:"title"`
	Action       string `json:"action"`
	WhyItMatters string `json:"why_it_matters"`
	Timeframe    string `json:"timeframe"`
}

// CoachResponse is the structured coaching plan returned for every chat
// turn, whether model-generated or deterministic.
type CoachResponse struct {
	Summary           string         `json:"summary"`
	Priorities        []PlanPriority `json:"priorities"`
	MealFocus         []string       `json:"meal_focus"`
	SupplementOptions []string       `json:"supplement_options"`
	SafetyWatchouts   []string       `json:"safety_watchouts"`
	FollowUpQuestions []string       `json:"follow_up_questions"`
	Disclaimer        string         `json:"disclaimer"`
}

// ToolCallRecord is the audit record of one tool invocation during plan
// generation. The result preview is truncated, not the full payload.
type ToolCallRecord struct {
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments"`
	ResultPreview string         `json:"result_preview"`
}

// ProfileContext is the user's coaching profile as seen by the engine.
type ProfileContext struct {
	Goals              []string
	DietaryPreferences []string
	Allergies          []string
	Medications        []string
	Notes              string
}

// HistoryMessage is one prior conversation turn.
type HistoryMessage struct {
	Role    string
	Content string
}

// PlanRequest is the input to one plan-generation run.
type PlanRequest struct {
	UserID     string
	Message    string
	ImageURL   string
	Profile    ProfileContext
	History    []HistoryMessage
	Generation GenerationConfig
}

// ModelGateway abstracts the model provider. Implemented by the llm package;
// faked in tests.
type ModelGateway interface {
	// Enabled reports whether the gateway can reach a model at all.
	Enabled() bool

	// ChatCompletion runs one model turn with tool declarations attached and
	// returns the model's content, which may carry function calls.
	ChatCompletion(ctx context.Context, system string, contents []*genai.Content, gen GenerationConfig, tools []*genai.FunctionDeclaration) (*genai.Content, error)

	// GenerateCoachResponse runs the structured-output turn that produces
	// the final plan.
	GenerateCoachResponse(ctx context.Context, system string, contents []*genai.Content, gen GenerationConfig) (*CoachResponse, error)

	// ImagePart loads an uploaded image as an inline part.
	ImagePart(imageURL string) (*genai.Part, error)
}

// ToolExecutor abstracts the tool registry. Execute never returns an error;
// failures are encoded in the result payload so the loop can continue.
type ToolExecutor interface {
	Declarations() []*genai.FunctionDeclaration
	Execute(ctx context.Context, name string, args map[string]any, userID string) map[string]any
}
