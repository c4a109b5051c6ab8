package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/retry"
)

// Article is a normalized PubMed summary record.
type Article struct {
	PMID    string   `json:"pmid"`
	Title   string   `json:"title"`
	PubDate string   `json:"pubdate"`
	Journal string   `json:"source"`
	Authors []string `json:"authors"`
}

// PubMedConfig configures the NCBI E-utilities client. Tool and Email
// identify the caller to NCBI per their usage policy.
type PubMedConfig struct {
	ESearchURL  string
	ESummaryURL string
	APIKey      string // optional, raises the rate limit when set
	Tool        string
	Email       string
}

// PubMedClient searches PubMed via the NCBI E-utilities esearch/esummary
// pair.
type PubMedClient struct {
	cfg    PubMedConfig
	client *http.Client
	logger log.Logger
}

// NewPubMed creates a PubMed client.
func NewPubMed(cfg PubMedConfig, logger log.Logger) (*PubMedClient, error) {
	if cfg.ESearchURL == "" || cfg.ESummaryURL == "" {
		return nil, fmt.Errorf("pubmed esearch and esummary URLs are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &PubMedClient{
		cfg:    cfg,
		client: newHTTPClient(),
		logger: logger,
	}, nil
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// esummary keys its result object by PMID, with a uids entry alongside, so
// the rows have to be decoded individually.
type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryRow struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// SearchEvidence searches PubMed and returns summaries for the top hits.
// Author lists are truncated to the first three names. A blank query
// short-circuits to empty.
func (c *PubMedClient) SearchEvidence(ctx context.Context, query string, maxResults int) ([]Article, error) {
	if strings.TrimSpace(query) == "" {
		return []Article{}, nil
	}

	searchParams := c.baseParams()
	searchParams.Set("term", query)
	searchParams.Set("retmax", strconv.Itoa(maxResults))

	search, err := retry.Do(ctx, retry.HTTPConfig(), func() (*esearchResponse, error) {
		return getJSON(ctx, c.client, "pubmed esearch", c.cfg.ESearchURL, searchParams, &esearchResponse{})
	})
	if err != nil {
		return nil, err
	}

	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return []Article{}, nil
	}

	summaryParams := c.baseParams()
	summaryParams.Set("id", strings.Join(ids, ","))

	summary, err := retry.Do(ctx, retry.HTTPConfig(), func() (*esummaryResponse, error) {
		return getJSON(ctx, c.client, "pubmed esummary", c.cfg.ESummaryURL, summaryParams, &esummaryResponse{})
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(ids))
	for _, pmid := range ids {
		raw, ok := summary.Result[pmid]
		if !ok {
			continue
		}

		var row esummaryRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.Warn("skipping malformed pubmed summary row", "pmid", pmid, "error", err)
			continue
		}

		authors := make([]string, 0, 3)
		for _, a := range row.Authors {
			if len(authors) == 3 {
				break
			}
			authors = append(authors, a.Name)
		}

		articles = append(articles, Article{
			PMID:    pmid,
			Title:   row.Title,
			PubDate: row.PubDate,
			Journal: row.Source,
			Authors: authors,
		})
	}

	return articles, nil
}

func (c *PubMedClient) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "json")
	params.Set("tool", c.cfg.Tool)
	params.Set("email", c.cfg.Email)
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return params
}

func getJSON[T any](ctx context.Context, client *http.Client, op, endpoint string, params url.Values, out *T) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	if err := decodeJSON(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}
