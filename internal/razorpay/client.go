package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/satvik-basket/backend/internal/payment"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// Client is a thin adapter over Razorpay's Orders API and its callback
// signature scheme. It carries no business validation.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(keyID, keySecret string, opts ...Option) *Client {
	c := &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder mints a provider-side order. Amount is in minor units.
func (c *Client) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (payment.ProviderOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:         amountMinorUnits,
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	if err != nil {
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: failed to build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: order request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Description != "" {
			return payment.ProviderOrder{}, fmt.Errorf("razorpay: order creation failed: %d %s %s",
				resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: order creation failed with status %d", resp.StatusCode)
	}

	var out orderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return payment.ProviderOrder{}, fmt.Errorf("razorpay: failed to decode order response: %w", err)
	}

	return payment.ProviderOrder{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
	}, nil
}

// VerifySignature recomputes HMAC-SHA256 over "orderID|paymentID" with the
// key secret and compares in constant time against the supplied hex digest.
func (c *Client) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
