package providers

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

// AmadeusProvider books flight offers through the Amadeus order API. The
// protocol details stay behind this adapter; the automation core only sees
// CreateOrder succeed, fail or time out.
type AmadeusProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func NewAmadeusProvider(baseURL, apiKey string) *AmadeusProvider {
	return &AmadeusProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "amadeus"}),
	}
}

func (p *AmadeusProvider) Name() string {
	return "amadeus"
}

// CreateOrder runs behind a circuit breaker: once Amadeus is evidently down,
// callers fail fast instead of burning the guard's execution timeout. The
// breaker never retries the order call.
func (p *AmadeusProvider) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	var result *OrderResult
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		var orderErr error
		result, orderErr = p.createOrder(ctx, req)
		return orderErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *AmadeusProvider) createOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"offer_ref":   req.OfferRef,
		"booking_ref": req.BookingCode,
		"meta":        req.Meta,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/booking/flight-orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("amadeus order creation failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("amadeus order creation failed with status %d: %s", resp.StatusCode, respBody)
	}

	var payload struct {
		ID     string                 `json:"id"`
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("amadeus order response malformed: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("amadeus order response missing id")
	}

	return &OrderResult{
		ConfirmationRef: payload.ID,
		Status:          payload.Status,
		Raw:             payload.Data,
	}, nil
}
