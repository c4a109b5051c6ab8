package coach

import (
	"fmt"
	"strings"
)

// buildFallbackPlan produces a deterministic plan from the profile alone.
// It runs when no model is configured or every model attempt failed, so the
// chat endpoint always answers.
func buildFallbackPlan(message string, profile ProfileContext) *CoachResponse {
	messageText := strings.TrimSpace(message)

	primaryGoal := "better daily nutrition consistency"
	if len(profile.Goals) > 0 {
		primaryGoal = profile.Goals[0]
	}
	goalLower := strings.ToLower(primaryGoal)

	priorities := []PlanPriority{
		{
			Title:        "Protein anchor",
			Action:       "Add a clear protein source in your next two meals.",
			WhyItMatters: "Consistent protein makes energy, recovery, and satiety easier to manage.",
			Timeframe:    "today",
		},
		{
			Title:        "Plate balance",
			Action:       "Use the 1/2 vegetables, 1/4 protein, 1/4 carbs plate template for at least one meal.",
			WhyItMatters: "Balanced meals usually improve micronutrients and appetite control.",
			Timeframe:    "next meal",
		},
		{
			Title:        "Hydration baseline",
			Action:       "Set two water reminders and pair each with meals.",
			WhyItMatters: "Hydration quality strongly affects hunger, training quality, and recovery.",
			Timeframe:    "today",
		},
	}

	mealFocus := []string{
		"Aim for 25-40g protein per meal based on your appetite and schedule.",
		"Add one high-fiber item each meal (vegetables, fruit, oats, beans, or seeds).",
		"Keep one easy backup meal ready for busy days to avoid plan drift.",
	}

	supplementOptions := []string{
		"Creatine monohydrate can be considered for performance goals (3-5g daily).",
		"Vitamin D or omega-3 may be worth discussing if intake/sun exposure is low.",
	}

	if strings.Contains(goalLower, "weight") || strings.Contains(goalLower, "fat") {
		priorities[0] = PlanPriority{
			Title:        "Satiety first",
			Action:       "Start each meal with protein + vegetables before starch-heavy foods.",
			WhyItMatters: "This pattern can reduce overeating without aggressive restriction.",
			Timeframe:    "today",
		}
		mealFocus[0] = "Build meals around protein + fiber first, then add carbs based on hunger."
	}

	if strings.Contains(goalLower, "muscle") || strings.Contains(goalLower, "strength") ||
		strings.Contains(goalLower, "performance") {
		mealFocus[0] = "Target protein across 3-4 feedings during the day for better recovery support."
		supplementOptions[0] = "Creatine monohydrate is a common evidence-based option for strength output."
	}

	if len(profile.DietaryPreferences) > 0 {
		prefs := profile.DietaryPreferences
		if len(prefs) > 3 {
			prefs = prefs[:3]
		}
		mealFocus = append(mealFocus,
			fmt.Sprintf("Keep all food choices aligned with your preference pattern: %s.", strings.Join(prefs, ", ")))
	}

	safetyWatchouts := []string{
		"Avoid rapid changes to supplements all at once; adjust one variable at a time.",
	}
	if len(profile.Allergies) > 0 {
		allergies := profile.Allergies
		if len(allergies) > 4 {
			allergies = allergies[:4]
		}
		safetyWatchouts = append(safetyWatchouts,
			fmt.Sprintf("Double-check ingredient labels for: %s.", strings.Join(allergies, ", ")))
	}
	if len(profile.Medications) > 0 {
		safetyWatchouts = append(safetyWatchouts,
			"Because medications are involved, confirm supplement compatibility with your clinician/pharmacist.")
	}

	followUpQuestions := []string{
		"What does your usual breakfast/lunch/dinner look like right now?",
		"Do you want a budget-friendly plan, convenience-first plan, or performance-first plan?",
	}

	summary := fmt.Sprintf("Your plan should focus on %s with consistent meals, "+
		"clear protein targets, and safety-aware changes.", primaryGoal)
	if messageText != "" {
		summary = fmt.Sprintf("Based on your check-in, focus on %s with simple actions you can execute today.", primaryGoal)
	}
	if profile.Notes != "" {
		summary += " I also considered your saved notes."
	}

	return &CoachResponse{
		Summary:           summary,
		Priorities:        priorities,
		MealFocus:         mealFocus,
		SupplementOptions: supplementOptions,
		SafetyWatchouts:   safetyWatchouts,
		FollowUpQuestions: followUpQuestions,
		Disclaimer:        "General education only, not medical advice.",
	}
}
