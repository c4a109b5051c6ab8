package tools

import "google.golang.org/genai"

// Declarations returns the function declarations advertised to the model.
// The set is static: adding a tool means adding a declaration here and a
// case to Execute.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        ToolLookupProducts,
			Description: "Search real supplement products from Open Food Facts in real time.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString},
					"limit": {Type: genai.TypeInteger},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolLookupNutrients,
			Description: "Search USDA FoodData Central for authoritative nutrition values.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString},
					"limit": {Type: genai.TypeInteger},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolEstimateMealNutrition,
			Description: "Estimate total meal macros by querying USDA for each food item.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"food_items": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"food_items"},
			},
		},
		{
			Name:        ToolLookupSafetySignals,
			Description: "Fetch relevant safety/label signals from openFDA.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"term":  {Type: genai.TypeString},
					"limit": {Type: genai.TypeInteger},
				},
				Required: []string{"term"},
			},
		},
		{
			Name:        ToolLookupEvidence,
			Description: "Search PubMed evidence summaries for a nutrition/supplement claim.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query":       {Type: genai.TypeString},
					"max_results": {Type: genai.TypeInteger},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolGetUserMemory,
			Description: "Retrieve remembered user profile/preferences for personalization.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"user_id": {Type: genai.TypeString},
				},
			},
		},
		{
			Name:        ToolStoreUserMemory,
			Description: "Persist durable user preferences for future conversations.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"user_id": {Type: genai.TypeString},
					"key":     {Type: genai.TypeString},
					"value":   {Type: genai.TypeString},
					"reason":  {Type: genai.TypeString},
				},
				Required: []string{"key", "value"},
			},
		},
	}
}
