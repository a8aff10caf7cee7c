/**
 * @description
 * This package provides a client for interacting with the upstream exchange API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * exchange's endpoints, handling request body construction, and parsing responses.
 *
 * The exchange imposes a hard global request-rate ceiling; this client performs
 * no throttling of its own. All calls must be admitted through the outbound
 * queue, which owns the rate budget.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package exchangeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrTransactionNotFound is returned by GetTransactionStatus when the upstream
// does not know the id yet. Right after creation this is expected propagation
// delay, not a failure.
var ErrTransactionNotFound = errors.New("upstream transaction not found")

// Client is a client for the upstream exchange API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new exchange API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateTransactionRequest is the payload for the exchange's create-transaction endpoint.
type CreateTransactionRequest struct {
	FromCurrency       string `json:"fromCurrency"`
	ToCurrency         string `json:"toCurrency"`
	FromNetwork        string `json:"fromNetwork"`
	ToNetwork          string `json:"toNetwork"`
	FromAmount         string `json:"fromAmount"`
	DestinationAddress string `json:"address"`
	Flow               string `json:"flow"`
}

// CreateTransactionResponse is the expected response from the create-transaction endpoint.
type CreateTransactionResponse struct {
	ID            string `json:"id"`
	PayinAddress  string `json:"payinAddress"`
	PayoutAddress string `json:"payoutAddress"`
	FromAmount    string `json:"fromAmount"`
	ToAmount      string `json:"toAmount"`
}

// TransactionStatusResponse is the expected response from the status endpoint.
type TransactionStatusResponse struct {
	Status     string `json:"status"`
	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`
	PayoutHash string `json:"payoutHash,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// APIError represents a non-2xx response from the exchange API.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("exchange api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("exchange api error (status %d)", e.StatusCode)
}

// IsRetryable reports whether an error from this client is worth retrying:
// network-level failures and 5xx-class responses are transient, 4xx responses
// are rejections that will not change on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransactionNotFound) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Anything that never produced an HTTP status is a transport failure.
	return true
}

// CreateTransaction asks the exchange to create a new transaction and returns
// the assigned id together with the payin (deposit) and payout addresses.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v2/exchange", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)

	bodyBytes, err := c.do(httpReq, "create_transaction")
	if err != nil {
		return nil, err
	}

	var resp CreateTransactionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}

	// The upstream response shape is not under our control; every field we
	// consume must be present before anything derived from it is persisted.
	if resp.ID == "" {
		return nil, errors.New("exchange create response missing transaction id")
	}
	if resp.PayinAddress == "" {
		return nil, errors.New("exchange create response missing payin address")
	}
	if resp.PayoutAddress == "" {
		return nil, errors.New("exchange create response missing payout address")
	}

	return &resp, nil
}

// GetTransactionStatus fetches the current lifecycle status of a transaction by upstream id.
func (c *Client) GetTransactionStatus(ctx context.Context, upstreamID string) (*TransactionStatusResponse, error) {
	endpoint := c.BaseURL + "/v2/exchange/by-id?id=" + url.QueryEscape(upstreamID)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)

	bodyBytes, err := c.do(httpReq, "get_transaction_status")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	var resp TransactionStatusResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if resp.Status == "" {
		return nil, errors.New("exchange status response missing status field")
	}

	return &resp, nil
}

// do executes a request and returns the response body, converting non-2xx
// responses into *APIError.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil {
			log.Printf("level=warn component=exchange_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
		} else {
			log.Printf("level=warn component=exchange_client op=%s status=%d code=%q detail=%q", op, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return nil, apiErr
	}

	return bodyBytes, nil
}
