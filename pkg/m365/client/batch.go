package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxBatchSize is the Graph limit on requests per $batch call.
const MaxBatchSize = 20

type BatchRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BatchResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Batch submits up to MaxBatchSize GET-style sub-requests in one $batch call.
// Individual sub-request failures are reported through BatchResponse.Status.
func (c *Client) Batch(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if len(requests) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit of %d requests", len(requests), MaxBatchSize)
	}
	for i := range requests {
		if requests[i].Method == "" {
			requests[i].Method = http.MethodGet
		}
	}

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/$batch",
		Body:   map[string]any{"requests": requests},
	})
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}

	var result struct {
		Responses []BatchResponse `json:"responses"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return result.Responses, nil
}
