package coach

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/nutribot/nutribot/internal/log"
)

// resultPreviewLimit bounds the tool-result excerpt kept in audit records.
const resultPreviewLimit = 500

// Engine generates coaching plans. It is safe for concurrent use.
type Engine struct {
	gateway       ModelGateway
	tools         ToolExecutor
	maxToolRounds int
	logger        log.Logger
}

// NewEngine creates a plan-generation engine. tools may be nil, in which
// case the model is called without a tool loop.
func NewEngine(gateway ModelGateway, tools ToolExecutor, maxToolRounds int, logger log.Logger) (*Engine, error) {
	if gateway == nil {
		return nil, fmt.Errorf("model gateway is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if maxToolRounds < 1 {
		return nil, fmt.Errorf("max tool rounds must be at least 1, got %d", maxToolRounds)
	}

	return &Engine{
		gateway:       gateway,
		tools:         tools,
		maxToolRounds: maxToolRounds,
		logger:        logger,
	}, nil
}

// BuildPlan generates a coaching plan for one chat turn.
//
// The order is fixed: crisis screening first, then the model path when a
// model is configured, then the deterministic fallback. Model failures are
// logged and absorbed; the caller always receives a plan.
func (e *Engine) BuildPlan(ctx context.Context, req PlanRequest) (*CoachResponse, []ToolCallRecord) {
	if req.Message != "" {
		if crisis := checkCrisis(req.Message); crisis != nil {
			e.logger.Warn("crisis keywords detected, returning referral response", "user_id", req.UserID)
			return crisis, nil
		}
	}

	if e.gateway.Enabled() {
		response, records, err := e.buildPlanWithModel(ctx, req)
		if err == nil {
			return response, records
		}
		e.logger.Error("model plan generation failed, falling back", "error", err, "user_id", req.UserID)
	}

	return buildFallbackPlan(req.Message, req.Profile), nil
}

// buildPlanWithModel runs the bounded tool loop and the final structured
// generation turn.
func (e *Engine) buildPlanWithModel(ctx context.Context, req PlanRequest) (*CoachResponse, []ToolCallRecord, error) {
	system := buildSystemInstruction(req.Profile)

	contents, err := e.buildContents(req)
	if err != nil {
		return nil, nil, err
	}

	records := make([]ToolCallRecord, 0)

	var declarations []*genai.FunctionDeclaration
	if e.tools != nil {
		declarations = e.tools.Declarations()
	}

	if len(declarations) > 0 && req.UserID != "" {
		for round := 0; round < e.maxToolRounds; round++ {
			content, err := e.gateway.ChatCompletion(ctx, system, contents, req.Generation, declarations)
			if err != nil {
				return nil, nil, fmt.Errorf("tool round %d: %w", round+1, err)
			}

			calls := functionCalls(content)
			if len(calls) == 0 {
				if text := contentText(content); text != "" {
					contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
				}
				break
			}

			contents = append(contents, content)

			responseParts := make([]*genai.Part, 0, len(calls))
			for _, call := range calls {
				result := e.tools.Execute(ctx, call.Name, call.Args, req.UserID)

				raw, err := json.Marshal(result)
				if err != nil {
					raw = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
				}
				records = append(records, ToolCallRecord{
					ToolName:      call.Name,
					Arguments:     call.Args,
					ResultPreview: truncate(string(raw), resultPreviewLimit),
				})

				responseParts = append(responseParts, genai.NewPartFromFunctionResponse(call.Name, result))
				e.logger.Info("tool called", "tool", call.Name, "round", round+1, "user_id", req.UserID)
			}
			contents = append(contents, genai.NewContentFromParts(responseParts, genai.RoleUser))
		}
	}

	response, err := e.gateway.GenerateCoachResponse(ctx, system, contents, req.Generation)
	if err != nil {
		return nil, nil, fmt.Errorf("structured generation: %w", err)
	}

	return response, records, nil
}

func functionCalls(content *genai.Content) []*genai.FunctionCall {
	if content == nil {
		return nil
	}
	calls := make([]*genai.FunctionCall, 0)
	for _, part := range content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func contentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
