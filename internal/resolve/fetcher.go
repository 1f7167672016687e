package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/propertydigital/pdimport/pkg/core"
)

// HTTPFetcher resolves entities against the platform's entity API:
// GET {base}/api/{entityType}?ids=a,b,c -> {"entities": {"a": {...}}}.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the given API base URL.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchBatch requests one sub-batch of ids.
func (f *HTTPFetcher) FetchBatch(ctx context.Context, entityType string, ids []string) (map[string]core.Entity, error) {
	endpoint := fmt.Sprintf("%s/api/%s?ids=%s", f.baseURL, url.PathEscape(entityType), url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entity fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("entity API %s returned %d: %s", entityType, resp.StatusCode, string(body))
	}

	var payload struct {
		Entities map[string]core.Entity `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode entity response: %w", err)
	}
	return payload.Entities, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
