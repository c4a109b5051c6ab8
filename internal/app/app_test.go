package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutribot/nutribot/internal/config"
	"github.com/nutribot/nutribot/internal/log"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Model:             "gemini-2.5-flash",
		VisionModel:       "gemini-2.5-flash",
		MaxToolRounds:     4,
		RequestsPerMinute: 60,
		DatabasePath:      filepath.Join(dir, "test.db"),
		UploadDir:         filepath.Join(dir, "uploads"),
		MaxUploadSizeMB:   10,
		Addr:              "127.0.0.1:0",

		OpenFoodFactsBaseURL:   "https://world.openfoodfacts.org/api/v2/search",
		OpenFoodFactsUserAgent: "test-agent",
		USDABaseURL:            "https://api.nal.usda.gov/fdc/v1/foods/search",
		OpenFDABaseURL:         "https://api.fda.gov/drug/label.json",
		NCBITool:               "test",
		NCBIEmail:              "test@example.com",
		PubMedESearchURL:       "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi",
		PubMedESummaryURL:      "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi",
	}
}

func TestNewWiresFullApplication(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	// No GEMINI_API_KEY: the app must still assemble with the fallback path.
	application, err := New(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ts := httptest.NewServer(application.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, log.NewNop())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
