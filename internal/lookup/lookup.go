// Package lookup provides typed clients for the public nutrition and
// biomedical data sources the coaching tools draw on: Open Food Facts,
// USDA FoodData Central, openFDA drug labels and PubMed.
//
// All clients share the same behavior: a 20 second request timeout,
// exponential-backoff retry on transient failures, and normalized result
// structs tagged with a source field so downstream consumers can
// attribute every datum.
package lookup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 20 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// decodeJSON decodes and closes a response body.
func decodeJSON(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError closes the body and reports a non-2xx status. The status code
// is embedded in the message so the retry layer can classify it.
func statusError(op string, resp *http.Response) error {
	_ = resp.Body.Close()
	return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
}
