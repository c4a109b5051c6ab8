// Package tools implements the coaching tool registry: the closed set of
// functions the model may call during plan generation. Dispatch is a static
// switch, never reflection, and every failure (including panics) is encoded
// as an error payload in the result so the tool loop keeps running.
package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/lookup"
	"github.com/nutribot/nutribot/internal/memory"
)

// Tool names.
const (
	ToolLookupProducts        = "lookup_products"
	ToolLookupNutrients       = "lookup_nutrients"
	ToolEstimateMealNutrition = "estimate_meal_nutrition"
	ToolLookupSafetySignals   = "lookup_safety_signals"
	ToolLookupEvidence        = "lookup_evidence"
	ToolGetUserMemory         = "get_user_memory"
	ToolStoreUserMemory       = "store_user_memory"
)

// Per-tool result-size clamps. Model-supplied limits are forced into these
// ranges regardless of what the arguments say.
const (
	productLimitDefault  = 6
	productLimitMax      = 12
	nutrientLimitDefault = 5
	nutrientLimitMax     = 10
	safetyLimitDefault   = 3
	safetyLimitMax       = 10
	evidenceLimitDefault = 5
	evidenceLimitMax     = 10
	memoryRecentLimit    = 10
)

// Client interfaces are deliberately narrow so tests can fake one data
// source at a time.

type productSearcher interface {
	SearchProducts(ctx context.Context, query string, pageSize int, categoryTag string) ([]lookup.Product, error)
}

type foodSearcher interface {
	SearchFood(ctx context.Context, query string, pageSize int) (lookup.FoodSearchResult, error)
}

type safetySearcher interface {
	SearchLabelSafety(ctx context.Context, term string, limit int) ([]lookup.SafetySignal, error)
}

type evidenceSearcher interface {
	SearchEvidence(ctx context.Context, query string, maxResults int) ([]lookup.Article, error)
}

type memoryAccessor interface {
	Add(ctx context.Context, externalID, key, value, reason string) error
	Snapshot(ctx context.Context, externalID string) (map[string]string, error)
	Recent(ctx context.Context, externalID string, limit int) ([]memory.Entry, error)
}

// Deps bundles the registry's data sources.
type Deps struct {
	Products productSearcher
	Foods    foodSearcher
	Safety   safetySearcher
	Evidence evidenceSearcher
	Memory   memoryAccessor
}

// Registry dispatches tool calls to the lookup clients and the memory
// store. It implements coach.ToolExecutor.
type Registry struct {
	products productSearcher
	foods    foodSearcher
	safety   safetySearcher
	evidence evidenceSearcher
	memory   memoryAccessor
	logger   log.Logger
}

// NewRegistry creates a registry. All dependencies are required.
func NewRegistry(deps Deps, logger log.Logger) (*Registry, error) {
	if deps.Products == nil || deps.Foods == nil || deps.Safety == nil || deps.Evidence == nil {
		return nil, fmt.Errorf("all lookup clients are required")
	}
	if deps.Memory == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Registry{
		products: deps.Products,
		foods:    deps.Foods,
		safety:   deps.Safety,
		evidence: deps.Evidence,
		memory:   deps.Memory,
		logger:   logger,
	}, nil
}

// Execute dispatches one tool call. It never returns an error or panics:
// failures come back as {"error": ...} payloads the model can read.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, userID string) (result map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = errorPayload(name, fmt.Errorf("panic: %v", rec))
		}
	}()

	switch name {
	case ToolLookupProducts:
		return r.lookupProducts(ctx, args)
	case ToolLookupNutrients:
		return r.lookupNutrients(ctx, args)
	case ToolEstimateMealNutrition:
		return r.estimateMealNutrition(ctx, args)
	case ToolLookupSafetySignals:
		return r.lookupSafetySignals(ctx, args)
	case ToolLookupEvidence:
		return r.lookupEvidence(ctx, args)
	case ToolGetUserMemory:
		return r.getUserMemory(ctx, args, userID)
	case ToolStoreUserMemory:
		return r.storeUserMemory(ctx, args, userID)
	default:
		return map[string]any{"error": fmt.Sprintf("Unknown tool '%s'", name)}
	}
}

func (r *Registry) lookupProducts(ctx context.Context, args map[string]any) map[string]any {
	query := argString(args, "query")
	limit := clamp(argInt(args, "limit", productLimitDefault), 1, productLimitMax)

	products, err := r.products.SearchProducts(ctx, query, limit, "")
	if err != nil {
		return errorPayload(ToolLookupProducts, err)
	}

	return map[string]any{
		"query":    query,
		"products": products,
		"source":   "openfoodfacts_live",
	}
}

func (r *Registry) lookupNutrients(ctx context.Context, args map[string]any) map[string]any {
	query := argString(args, "query")
	limit := clamp(argInt(args, "limit", nutrientLimitDefault), 1, nutrientLimitMax)

	result, err := r.foods.SearchFood(ctx, query, limit)
	if err != nil {
		return errorPayload(ToolLookupNutrients, err)
	}

	payload := map[string]any{
		"foods":  result.Foods,
		"source": "usda_live",
	}
	if result.Warning != "" {
		payload["warning"] = result.Warning
	}
	return payload
}

func (r *Registry) estimateMealNutrition(ctx context.Context, args map[string]any) map[string]any {
	items := argStringSlice(args, "food_items")

	var totalCalories, totalProtein, totalCarbs, totalFat float64
	perItem := make([]map[string]any, 0, len(items))
	unmatched := make([]string, 0)

	for _, item := range items {
		result, err := r.foods.SearchFood(ctx, item, 1)
		if err != nil {
			return errorPayload(ToolEstimateMealNutrition, err)
		}
		if len(result.Foods) == 0 {
			unmatched = append(unmatched, item)
			continue
		}

		top := result.Foods[0]
		calories := deref(top.Calories)
		protein := deref(top.Protein)
		carbs := deref(top.Carbs)
		fat := deref(top.Fat)

		totalCalories += calories
		totalProtein += protein
		totalCarbs += carbs
		totalFat += fat

		perItem = append(perItem, map[string]any{
			"query":    item,
			"match":    top.Description,
			"calories": round2(calories),
			"protein":  round2(protein),
			"carbs":    round2(carbs),
			"fat":      round2(fat),
		})
	}

	return map[string]any{
		"items":           perItem,
		"unmatched_items": unmatched,
		"estimated_totals": map[string]any{
			"calories": round2(totalCalories),
			"protein":  round2(totalProtein),
			"carbs":    round2(totalCarbs),
			"fat":      round2(totalFat),
		},
		"assumption": "Values reflect top USDA search match per item and may vary by serving size.",
		"source":     "usda_live",
	}
}

func (r *Registry) lookupSafetySignals(ctx context.Context, args map[string]any) map[string]any {
	term := argString(args, "term")
	limit := clamp(argInt(args, "limit", safetyLimitDefault), 1, safetyLimitMax)

	signals, err := r.safety.SearchLabelSafety(ctx, term, limit)
	if err != nil {
		return errorPayload(ToolLookupSafetySignals, err)
	}

	return map[string]any{
		"results": signals,
		"source":  "openfda_live",
	}
}

func (r *Registry) lookupEvidence(ctx context.Context, args map[string]any) map[string]any {
	query := argString(args, "query")
	maxResults := clamp(argInt(args, "max_results", evidenceLimitDefault), 1, evidenceLimitMax)

	articles, err := r.evidence.SearchEvidence(ctx, query, maxResults)
	if err != nil {
		return errorPayload(ToolLookupEvidence, err)
	}

	return map[string]any{
		"articles": articles,
		"source":   "pubmed_live",
	}
}

func (r *Registry) getUserMemory(ctx context.Context, args map[string]any, userID string) map[string]any {
	target := argString(args, "user_id")
	if target == "" {
		target = userID
	}

	snapshot, err := r.memory.Snapshot(ctx, target)
	if err != nil {
		return errorPayload(ToolGetUserMemory, err)
	}
	recent, err := r.memory.Recent(ctx, target, memoryRecentLimit)
	if err != nil {
		return errorPayload(ToolGetUserMemory, err)
	}

	return map[string]any{
		"snapshot": snapshot,
		"recent":   recent,
	}
}

func (r *Registry) storeUserMemory(ctx context.Context, args map[string]any, userID string) map[string]any {
	target := argString(args, "user_id")
	if target == "" {
		target = userID
	}
	key := argString(args, "key")
	value := argString(args, "value")
	reason := argString(args, "reason")

	if key == "" || value == "" {
		return map[string]any{"status": "skipped", "reason": "missing key/value"}
	}

	if err := r.memory.Add(ctx, target, key, value, reason); err != nil {
		return errorPayload(ToolStoreUserMemory, err)
	}

	return map[string]any{"status": "stored", "key": key, "value": value}
}

func errorPayload(name string, err error) map[string]any {
	return map[string]any{"error": fmt.Sprintf("Tool '%s' failed: %v", name, err)}
}

// Argument extraction tolerates the loose typing of model-produced JSON:
// numbers arrive as float64, and any field may be missing or mistyped.

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			items = append(items, s)
		}
	}
	return items
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
