package coach

import "strings"

// Crisis screening runs before any model call so a user in distress always
// gets the referral response, even when the model is down or would have
// answered differently.
var crisisKeywords = []string{
	"kill myself",
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"end my life",
	"want to die",
	"don't want to live",
	"dont want to live",
	"better off dead",
	"no reason to live",
}

const crisisSummary = "I hear you, and I want you to know that what you're feeling matters. " +
	"Please reach out to the 988 Suicide & Crisis Lifeline — " +
	"call or text 988, available 24/7. You can also talk to someone " +
	"you trust. I'm here for nutrition support whenever you're ready, " +
	"but right now the most important thing is connecting with someone " +
	"who can truly help."

const crisisDisclaimer = "If you are in crisis, please contact 988 or your local emergency services."

// checkCrisis returns the canned referral response when the message contains
// a crisis keyword, nil otherwise. All plan sections are empty on purpose:
// no nutrition advice accompanies a crisis response.
func checkCrisis(message string) *CoachResponse {
	lower := strings.ToLower(message)
	for _, kw := range crisisKeywords {
		if strings.Contains(lower, kw) {
			return &CoachResponse{
				Summary:           crisisSummary,
				Priorities:        []PlanPriority{},
				MealFocus:         []string{},
				SupplementOptions: []string{},
				SafetyWatchouts:   []string{},
				FollowUpQuestions: []string{},
				Disclaimer:        crisisDisclaimer,
			}
		}
	}
	return nil
}
