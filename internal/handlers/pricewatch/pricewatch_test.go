package pricewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func priceServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckObservesPrice(t *testing.T) {
	srv := priceServer(t, 200, `{"price": 42.5, "currency": "USD"}`)

	payload, _ := json.Marshal(Request{URL: srv.URL, Threshold: 50})
	out, err := Check{}.Handle(context.Background(), payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var obs Observation
	if err := json.Unmarshal(out, &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Price != 42.5 {
		t.Errorf("price = %v, want 42.5", obs.Price)
	}
	if !obs.Triggered {
		t.Error("threshold 50 with price 42.5 should trigger")
	}
}

func TestCheckNotTriggeredAboveThreshold(t *testing.T) {
	srv := priceServer(t, 200, `{"price": 99.0}`)

	payload, _ := json.Marshal(Request{URL: srv.URL, Threshold: 50})
	out, err := Check{}.Handle(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	var obs Observation
	if err := json.Unmarshal(out, &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Triggered {
		t.Error("price above threshold must not trigger")
	}
}

func TestCheckCustomField(t *testing.T) {
	srv := priceServer(t, 200, `{"amount": 10.0}`)

	payload, _ := json.Marshal(Request{URL: srv.URL, Field: "amount"})
	out, err := Check{}.Handle(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	var obs Observation
	if err := json.Unmarshal(out, &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Price != 10.0 {
		t.Errorf("price = %v, want 10", obs.Price)
	}
}

func TestCheckFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		req    Request
	}{
		{"http error", 500, `{}`, Request{}},
		{"missing field", 200, `{"other": 1}`, Request{}},
		{"non-numeric field", 200, `{"price": "cheap"}`, Request{}},
		{"not json", 200, `<html>`, Request{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := priceServer(t, tt.status, tt.body)
			tt.req.URL = srv.URL
			payload, _ := json.Marshal(tt.req)
			if _, err := (Check{}).Handle(context.Background(), payload); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCheckRequiresURL(t *testing.T) {
	if _, err := (Check{}).Handle(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Error("missing url accepted")
	}
}
