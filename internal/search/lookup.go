package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// NewHTTPLookup returns a LookupFunc querying a JSON similarity endpoint.
// The endpoint receives the extracted text as the q parameter and responds
// with a JSON array of results.
func NewHTTPLookup(endpoint string, client *http.Client) LookupFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, query string) ([]Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?q="+url.QueryEscape(query), nil)
		if err != nil {
			return nil, fmt.Errorf("build lookup request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("lookup request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("lookup returned %s", resp.Status)
		}
		var results []Result
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return nil, fmt.Errorf("decode lookup response: %w", err)
		}
		return results, nil
	}
}
