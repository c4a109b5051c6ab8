package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/retry"
)

// DefaultCategoryTag scopes product searches to dietary supplements unless
// the caller asks for a different Open Food Facts category.
const DefaultCategoryTag = "en:dietary-supplements"

// Product is a normalized Open Food Facts product. Macro fields are per
// 100g and nil when the source record omits them.
type Product struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Brands          string   `json:"brands,omitempty"`
	Quantity        string   `json:"quantity,omitempty"`
	IngredientsText string   `json:"ingredients_text,omitempty"`
	Categories      []string `json:"categories"`
	EnergyKcal100g  *float64 `json:"energy_kcal_100g"`
	Proteins100g    *float64 `json:"proteins_100g"`
	Carbs100g       *float64 `json:"carbs_100g"`
	Fat100g         *float64 `json:"fat_100g"`
	URL             string   `json:"url,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	Source          string   `json:"source"`
}

// OpenFoodFactsConfig configures the Open Food Facts client.
type OpenFoodFactsConfig struct {
	BaseURL   string
	UserAgent string
}

// OpenFoodFactsClient searches the Open Food Facts v2 search API.
type OpenFoodFactsClient struct {
	cfg    OpenFoodFactsConfig
	client *http.Client
	logger log.Logger
}

// NewOpenFoodFacts creates an Open Food Facts client.
func NewOpenFoodFacts(cfg OpenFoodFactsConfig, logger log.Logger) (*OpenFoodFactsClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("open food facts base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &OpenFoodFactsClient{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

// Raw wire shapes. Only the fields requested via the fields parameter.
type offResponse struct {
	Products []offProduct `json:"products"`
}

type offProduct struct {
	Code            string        `json:"code"`
	ProductName     string        `json:"product_name"`
	Brands          string        `json:"brands"`
	CategoriesTags  []string      `json:"categories_tags"`
	IngredientsText string        `json:"ingredients_text"`
	Nutriments      offNutriments `json:"nutriments"`
	Quantity        string        `json:"quantity"`
	ImageFrontURL   string        `json:"image_front_url"`
	URL             string        `json:"url"`
}

// Open Food Facts has shipped the per-100g energy field under two spellings.
type offNutriments struct {
	EnergyKcalDashed *float64 `json:"energy-kcal_100g"`
	EnergyKcal       *float64 `json:"energy_kcal_100g"`
	Proteins         *float64 `json:"proteins_100g"`
	Carbohydrates    *float64 `json:"carbohydrates_100g"`
	Fat              *float64 `json:"fat_100g"`
}

// SearchProducts searches products by free-text query within a category tag.
// Records without a product name are dropped.
func (c *OpenFoodFactsClient) SearchProducts(ctx context.Context, query string, pageSize int, categoryTag string) ([]Product, error) {
	if categoryTag == "" {
		categoryTag = DefaultCategoryTag
	}

	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("categories_tags", categoryTag)
	params.Set("page", "1")
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("fields", strings.Join([]string{
		"code",
		"product_name",
		"brands",
		"categories_tags",
		"ingredients_text",
		"nutriments",
		"quantity",
		"image_front_url",
		"url",
	}, ","))

	payload, err := retry.Do(ctx, retry.HTTPConfig(), func() (*offResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("open food facts search: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, statusError("open food facts search", resp)
		}

		var body offResponse
		if err := decodeJSON(resp, &body); err != nil {
			return nil, err
		}
		return &body, nil
	})
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(payload.Products))
	for _, p := range payload.Products {
		name := strings.TrimSpace(p.ProductName)
		if name == "" {
			continue
		}

		id := p.Code
		if id == "" {
			id = name
		}

		energy := p.Nutriments.EnergyKcalDashed
		if energy == nil {
			energy = p.Nutriments.EnergyKcal
		}

		categories := p.CategoriesTags
		if categories == nil {
			categories = []string{}
		}

		products = append(products, Product{
			ID:              id,
			Name:            name,
			Brands:          p.Brands,
			Quantity:        p.Quantity,
			IngredientsText: p.IngredientsText,
			Categories:      categories,
			EnergyKcal100g:  energy,
			Proteins100g:    p.Nutriments.Proteins,
			Carbs100g:       p.Nutriments.Carbohydrates,
			Fat100g:         p.Nutriments.Fat,
			URL:             p.URL,
			ImageURL:        p.ImageFrontURL,
			Source:          "openfoodfacts",
		})
	}

	c.logger.Debug("open food facts search complete",
		"query", query, "returned", len(products))

	return products, nil
}
