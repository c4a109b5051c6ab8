package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/retry"
)

// NoUSDAKeyWarning is returned in FoodSearchResult.Warning when the client
// has no API key. Lookups then degrade to an empty result instead of failing.
const NoUSDAKeyWarning = "USDA_API_KEY is not set. Configure it to enable authoritative nutrient lookup."

// Food is a normalized FoodData Central search hit. Macro fields are nil
// when the source record omits the nutrient.
type Food struct {
	Description string   `json:"description"`
	Brand       string   `json:"brand,omitempty"`
	Calories    *float64 `json:"calories"`
	Protein     *float64 `json:"protein"`
	Carbs       *float64 `json:"carbs"`
	Fat         *float64 `json:"fat"`
	Source      string   `json:"source"`
}

// FoodSearchResult wraps a nutrient search so a missing API key can surface
// as a warning the model can relay rather than an error.
type FoodSearchResult struct {
	Warning string `json:"warning,omitempty"`
	Foods   []Food `json:"foods"`
}

// USDAConfig configures the FoodData Central client.
type USDAConfig struct {
	BaseURL string
	APIKey  string
}

// USDAClient searches USDA FoodData Central for authoritative nutrient data.
type USDAClient struct {
	cfg    USDAConfig
	client *http.Client
	logger log.Logger
}

// NewUSDA creates a FoodData Central client. An empty API key is allowed;
// the client then reports itself disabled and returns empty results.
func NewUSDA(cfg USDAConfig, logger log.Logger) (*USDAClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("usda base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &USDAClient{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

// Enabled reports whether an API key is configured.
func (c *USDAClient) Enabled() bool {
	return c.cfg.APIKey != ""
}

type fdcResponse struct {
	Foods []fdcFood `json:"foods"`
}

type fdcFood struct {
	Description   string        `json:"description"`
	BrandOwner    string        `json:"brandOwner"`
	FoodNutrients []fdcNutrient `json:"foodNutrients"`
}

type fdcNutrient struct {
	NutrientName string   `json:"nutrientName"`
	Value        *float64 `json:"value"`
}

// SearchFood searches foods by free-text query and maps the FDC nutrient
// list down to the four macros.
func (c *USDAClient) SearchFood(ctx context.Context, query string, pageSize int) (FoodSearchResult, error) {
	if !c.Enabled() {
		c.logger.Warn("usda lookup skipped, no API key configured")
		return FoodSearchResult{Warning: NoUSDAKeyWarning, Foods: []Food{}}, nil
	}

	reqBody, err := json.Marshal(map[string]any{
		"query":    query,
		"pageSize": pageSize,
	})
	if err != nil {
		return FoodSearchResult{}, fmt.Errorf("encoding request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "?" + url.Values{"api_key": {c.cfg.APIKey}}.Encode()

	payload, err := retry.Do(ctx, retry.HTTPConfig(), func() (*fdcResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("usda food search: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, statusError("usda food search", resp)
		}

		var body fdcResponse
		if err := decodeJSON(resp, &body); err != nil {
			return nil, err
		}
		return &body, nil
	})
	if err != nil {
		return FoodSearchResult{}, err
	}

	foods := make([]Food, 0, len(payload.Foods))
	for _, item := range payload.Foods {
		macros := make(map[string]*float64, len(item.FoodNutrients))
		for _, n := range item.FoodNutrients {
			macros[strings.ToLower(n.NutrientName)] = n.Value
		}

		foods = append(foods, Food{
			Description: item.Description,
			Brand:       item.BrandOwner,
			Calories:    macros["energy"],
			Protein:     macros["protein"],
			Carbs:       macros["carbohydrate, by difference"],
			Fat:         macros["total lipid (fat)"],
			Source:      "usda_fdc",
		})
	}

	return FoodSearchResult{Foods: foods}, nil
}
