// Package payment reconciles client-submitted paystack references against
// the gateway and settles the order's payment state exactly once.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GatewayError marks the gateway as unreachable or misbehaving. It is
// retryable: the order stays unpaid and the caller may simply verify again.
type GatewayError struct {
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway: %v", e.Err)
	}
	return fmt.Sprintf("payment gateway: unexpected status %d", e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

type VerifyData struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount"` // minor currency units
	Currency string `json:"currency"`
}

type VerifyResponse struct {
	Status  bool       `json:"status"`
	Message string     `json:"message"`
	Data    VerifyData `json:"data"`
}

type Client struct {
	HTTP    *http.Client
	BaseURL string
	Secret  string
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  secret,
	}
}

// VerifyTransaction asks the gateway about a transaction reference. Any
// transport failure, non-200 response or undecodable body surfaces as a
// GatewayError.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/transaction/verify/%s", c.BaseURL, url.PathEscape(reference)), nil)
	req.Header.Set("Authorization", "Bearer "+c.Secret)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &GatewayError{StatusCode: res.StatusCode}
	}
	var out VerifyResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, &GatewayError{Err: err}
	}
	return &out, nil
}
