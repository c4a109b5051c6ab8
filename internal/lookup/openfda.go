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

// SafetySignal is a normalized openFDA drug-label record. Warning lists are
// truncated to the first two entries to keep tool payloads small.
type SafetySignal struct {
	BrandName         string   `json:"brand_name,omitempty"`
	GenericName       string   `json:"generic_name,omitempty"`
	Warnings          []string `json:"warnings"`
	AdverseReactions  []string `json:"adverse_reactions"`
	Contraindications []string `json:"contraindications"`
	Source            string   `json:"source"`
}

// OpenFDAConfig configures the openFDA drug-label client.
type OpenFDAConfig struct {
	BaseURL string
	APIKey  string // optional, raises the rate limit when set
}

// OpenFDAClient searches openFDA drug labels for safety signals on an
// ingredient or product term.
type OpenFDAClient struct {
	cfg    OpenFDAConfig
	client *http.Client
	logger log.Logger
}

// NewOpenFDA creates an openFDA client.
func NewOpenFDA(cfg OpenFDAConfig, logger log.Logger) (*OpenFDAClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openfda base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &OpenFDAClient{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

type fdaResponse struct {
	Results []fdaResult `json:"results"`
}

type fdaResult struct {
	OpenFDA           fdaOpenFDA `json:"openfda"`
	Warnings          []string   `json:"warnings"`
	AdverseReactions  []string   `json:"adverse_reactions"`
	Contraindications []string   `json:"contraindications"`
}

type fdaOpenFDA struct {
	BrandName   []string `json:"brand_name"`
	GenericName []string `json:"generic_name"`
}

// SearchLabelSafety searches drug labels matching the term by generic or
// brand name. A 404 from openFDA means no label matched and yields an empty
// result, not an error. A blank term short-circuits to empty.
func (c *OpenFDAClient) SearchLabelSafety(ctx context.Context, term string, limit int) ([]SafetySignal, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []SafetySignal{}, nil
	}

	params := url.Values{}
	params.Set("search", fmt.Sprintf("openfda.generic_name:%q+openfda.brand_name:%q", term, term))
	params.Set("limit", strconv.Itoa(limit))
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	payload, err := retry.Do(ctx, retry.HTTPConfig(), func() (*fdaResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("openfda label search: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return &fdaResponse{}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, statusError("openfda label search", resp)
		}

		var body fdaResponse
		if err := decodeJSON(resp, &body); err != nil {
			return nil, err
		}
		return &body, nil
	})
	if err != nil {
		return nil, err
	}

	signals := make([]SafetySignal, 0, len(payload.Results))
	for _, item := range payload.Results {
		signals = append(signals, SafetySignal{
			BrandName:         firstOf(item.OpenFDA.BrandName),
			GenericName:       firstOf(item.OpenFDA.GenericName),
			Warnings:          headOf(item.Warnings, 2),
			AdverseReactions:  headOf(item.AdverseReactions, 2),
			Contraindications: headOf(item.Contraindications, 2),
			Source:            "openfda",
		})
	}

	return signals, nil
}

func firstOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func headOf(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	if s == nil {
		s = []string{}
	}
	return s
}
