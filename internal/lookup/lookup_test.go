package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutribot/nutribot/internal/log"
)

func TestOpenFoodFactsSearchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "creatine", r.URL.Query().Get("search_terms"))
		assert.Equal(t, DefaultCategoryTag, r.URL.Query().Get("categories_tags"))
		assert.Equal(t, "6", r.URL.Query().Get("page_size"))
		assert.Contains(t, r.Header.Get("User-Agent"), "nutribot-test")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[
			{"code":"123","product_name":"Creatine Monohydrate","brands":"Acme",
			 "nutriments":{"energy-kcal_100g":350,"proteins_100g":0}},
			{"code":"456","product_name":"  "},
			{"product_name":"No Code Powder"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewOpenFoodFacts(OpenFoodFactsConfig{
		BaseURL:   srv.URL,
		UserAgent: "nutribot-test/0.1",
	}, log.NewNop())
	require.NoError(t, err)

	products, err := c.SearchProducts(context.Background(), "creatine", 6, "")
	require.NoError(t, err)

	// The nameless record is dropped; the codeless one falls back to its name.
	require.Len(t, products, 2)
	assert.Equal(t, "123", products[0].ID)
	assert.Equal(t, "Creatine Monohydrate", products[0].Name)
	assert.Equal(t, "openfoodfacts", products[0].Source)
	require.NotNil(t, products[0].EnergyKcal100g)
	assert.InDelta(t, 350, *products[0].EnergyKcal100g, 0.001)
	assert.Nil(t, products[0].Carbs100g)
	assert.Equal(t, "No Code Powder", products[1].ID)
}

func TestUSDASearchFoodMapsMacros(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foods":[
			{"description":"Chicken breast","brandOwner":"",
			 "foodNutrients":[
				{"nutrientName":"Energy","value":165},
				{"nutrientName":"Protein","value":31},
				{"nutrientName":"Carbohydrate, by difference","value":0},
				{"nutrientName":"Total lipid (fat)","value":3.6}
			 ]}
		]}`))
	}))
	defer srv.Close()

	c, err := NewUSDA(USDAConfig{BaseURL: srv.URL, APIKey: "test-key"}, log.NewNop())
	require.NoError(t, err)

	result, err := c.SearchFood(context.Background(), "chicken breast", 5)
	require.NoError(t, err)
	require.Len(t, result.Foods, 1)

	food := result.Foods[0]
	assert.Equal(t, "Chicken breast", food.Description)
	require.NotNil(t, food.Calories)
	assert.InDelta(t, 165, *food.Calories, 0.001)
	require.NotNil(t, food.Protein)
	assert.InDelta(t, 31, *food.Protein, 0.001)
	assert.Equal(t, "usda_fdc", food.Source)
}

func TestUSDASearchFoodWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without an API key")
	}))
	defer srv.Close()

	c, err := NewUSDA(USDAConfig{BaseURL: srv.URL}, log.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	result, err := c.SearchFood(context.Background(), "chicken", 5)
	require.NoError(t, err)
	assert.Equal(t, NoUSDAKeyWarning, result.Warning)
	assert.Empty(t, result.Foods)
}

func TestOpenFDASearchLabelSafety(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("search"), "caffeine")
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"openfda":{"brand_name":["NoDoz"],"generic_name":["caffeine"]},
			 "warnings":["w1","w2","w3"],
			 "adverse_reactions":["a1"]}
		]}`))
	}))
	defer srv.Close()

	c, err := NewOpenFDA(OpenFDAConfig{BaseURL: srv.URL}, log.NewNop())
	require.NoError(t, err)

	signals, err := c.SearchLabelSafety(context.Background(), "caffeine", 3)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.Equal(t, "NoDoz", signals[0].BrandName)
	assert.Equal(t, "caffeine", signals[0].GenericName)
	assert.Equal(t, []string{"w1", "w2"}, signals[0].Warnings)
	assert.Equal(t, []string{"a1"}, signals[0].AdverseReactions)
	assert.Equal(t, []string{}, signals[0].Contraindications)
	assert.Equal(t, "openfda", signals[0].Source)
}

func TestOpenFDANotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"NOT_FOUND"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOpenFDA(OpenFDAConfig{BaseURL: srv.URL}, log.NewNop())
	require.NoError(t, err)

	signals, err := c.SearchLabelSafety(context.Background(), "obscureterm", 3)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestOpenFDABlankTermShortCircuits(t *testing.T) {
	c, err := NewOpenFDA(OpenFDAConfig{BaseURL: "http://unused.invalid"}, log.NewNop())
	require.NoError(t, err)

	signals, err := c.SearchLabelSafety(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPubMedSearchEvidence(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
		assert.Equal(t, "creatine strength", r.URL.Query().Get("term"))
		assert.Equal(t, "2", r.URL.Query().Get("retmax"))
		_, _ = w.Write([]byte(`{"esearchresult":{"idlist":["11111","22222"]}}`))
	})
	mux.HandleFunc("/esummary", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "11111,22222", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"result":{
			"uids":["11111","22222"],
			"11111":{"title":"Creatine and strength","pubdate":"2023 Jan","source":"J Sports Sci",
			         "authors":[{"name":"Smith A"},{"name":"Lee B"},{"name":"Chan C"},{"name":"Diaz D"}]},
			"22222":{"title":"Second study","pubdate":"2022","source":"Nutrients","authors":[]}
		}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewPubMed(PubMedConfig{
		ESearchURL:  srv.URL + "/esearch",
		ESummaryURL: srv.URL + "/esummary",
		Tool:        "nutribot",
		Email:       "test@example.com",
	}, log.NewNop())
	require.NoError(t, err)

	articles, err := c.SearchEvidence(context.Background(), "creatine strength", 2)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "11111", articles[0].PMID)
	assert.Equal(t, "Creatine and strength", articles[0].Title)
	assert.Equal(t, "J Sports Sci", articles[0].Journal)
	assert.Equal(t, []string{"Smith A", "Lee B", "Chan C"}, articles[0].Authors)
	assert.Empty(t, articles[1].Authors)
}

func TestPubMedNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	}))
	defer srv.Close()

	c, err := NewPubMed(PubMedConfig{
		ESearchURL:  srv.URL,
		ESummaryURL: srv.URL,
		Tool:        "nutribot",
		Email:       "test@example.com",
	}, log.NewNop())
	require.NoError(t, err)

	articles, err := c.SearchEvidence(context.Background(), "no such topic", 5)
	require.NoError(t, err)
	assert.Empty(t, articles)
}
