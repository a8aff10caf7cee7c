package exchangeclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateTransaction_Success(t *testing.T) {
	var gotReq CreateTransactionRequest
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v2/exchange" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAPIKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("request decode failed: %v", err)
		}
		json.NewEncoder(w).Encode(CreateTransactionResponse{
			ID:            "tx-1",
			PayinAddress:  "deposit-addr",
			PayoutAddress: "recipient-addr",
			FromAmount:    "1.5",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	resp, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{
		FromCurrency:       "sol",
		ToCurrency:         "xsol",
		FromAmount:         "1.5",
		DestinationAddress: "recipient-addr",
		Flow:               "standard",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.ID != "tx-1" || resp.PayinAddress != "deposit-addr" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotAPIKey != "secret-key" {
		t.Fatalf("expected api key header, got %q", gotAPIKey)
	}
	if gotReq.ToCurrency != "xsol" || gotReq.DestinationAddress != "recipient-addr" {
		t.Fatalf("unexpected outbound payload: %+v", gotReq)
	}
}

func TestCreateTransaction_MissingFieldsRejected(t *testing.T) {
	tests := []struct {
		name string
		body CreateTransactionResponse
	}{
		{name: "missing id", body: CreateTransactionResponse{PayinAddress: "a", PayoutAddress: "b"}},
		{name: "missing payin", body: CreateTransactionResponse{ID: "tx", PayoutAddress: "b"}},
		{name: "missing payout", body: CreateTransactionResponse{ID: "tx", PayinAddress: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, "k")
			if _, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{}); err == nil {
				t.Fatal("incomplete upstream responses must be rejected")
			}
		})
	}
}

func TestCreateTransaction_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "out_of_range", "message": "amount too small"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "amount too small" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestGetTransactionStatus_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/exchange/by-id" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "tx-1" {
			t.Fatalf("expected id=tx-1, got %q", got)
		}
		json.NewEncoder(w).Encode(TransactionStatusResponse{Status: "exchanging", FromAmount: "1.5"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	resp, err := client.GetTransactionStatus(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Status != "exchanging" {
		t.Fatalf("unexpected status: %+v", resp)
	}
}

func TestGetTransactionStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.GetTransactionStatus(context.Background(), "tx-missing")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: &APIError{StatusCode: 502}, want: true},
		{name: "client rejection", err: &APIError{StatusCode: 422}, want: false},
		{name: "not found sentinel", err: ErrTransactionNotFound, want: false},
		{name: "transport failure", err: errors.New("connection refused"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}
