// Package pricewatch checks a price endpoint and reports the observed value,
// flagging it when a target threshold is crossed.
package pricewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Check struct{}

type Request struct {
	URL       string  `json:"url"`
	Field     string  `json:"field"`     // JSON field carrying the price
	Threshold float64 `json:"threshold"` // trigger when price <= threshold; 0 = report only
	Timeout   int     `json:"timeout"`   // seconds
}

type Observation struct {
	URL       string    `json:"url"`
	Price     float64   `json:"price"`
	Triggered bool      `json:"triggered"`
	CheckedAt time.Time `json:"checked_at"`
}

func (Check) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid price check payload: %w", err)
	}
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if req.Field == "" {
		req.Field = "price"
	}
	if req.Timeout <= 0 {
		req.Timeout = 30
	}

	client := &http.Client{Timeout: time.Duration(req.Timeout) * time.Second}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("price endpoint returned HTTP %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}
	raw, ok := body[req.Field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from price response", req.Field)
	}
	price, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("field %q is not numeric", req.Field)
	}

	obs := Observation{
		URL:       req.URL,
		Price:     price,
		Triggered: req.Threshold > 0 && price <= req.Threshold,
		CheckedAt: time.Now().UTC(),
	}
	return json.Marshal(obs)
}
