package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyago/fulfillment/resilience"
)

// DocumentServiceClient calls the document generation collaborator over HTTP.
// Content and templates of the generated documents are that service's
// business; this client only reports which document types failed.
type DocumentServiceClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func NewDocumentServiceClient(baseURL string) *DocumentServiceClient {
	return &DocumentServiceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "documents"}),
	}
}

func (c *DocumentServiceClient) Generate(ctx context.Context, bookingID, trigger string) (*DocumentReport, error) {
	var report *DocumentReport
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var genErr error
		report, genErr = c.generate(ctx, bookingID, trigger)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *DocumentServiceClient) generate(ctx context.Context, bookingID, trigger string) (*DocumentReport, error) {
	body, err := json.Marshal(map[string]string{
		"booking_id": bookingID,
		"trigger":    trigger,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/documents/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document service call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("document service returned status %d: %s", resp.StatusCode, respBody)
	}

	var report DocumentReport
	if err := json.Unmarshal(respBody, &report); err != nil {
		return nil, fmt.Errorf("document service response malformed: %w", err)
	}
	return &report, nil
}
