package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/propertydigital/pdimport/pkg/core"
)

// HTTPSender posts chunks to the ingestion endpoint.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSender creates a sender for the given server base URL.
func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// SendChunk posts one chunk and decodes the result. A 200 with a
// completed_with_errors body is a successful send; only transport errors
// and non-200 statuses come back as errors.
func (s *HTTPSender) SendChunk(ctx context.Context, chunk *ChunkRequest) (*core.ChunkResult, error) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/massive-import", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Id", chunk.JobID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ingestion endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var result core.ChunkResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode chunk result: %w", err)
	}
	return &result, nil
}

var _ Sender = (*HTTPSender)(nil)
