package paypal

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
	"strings"
	"time"
)

// CreatedSubscription is the provider's answer to a create call.
type CreatedSubscription struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ApprovalURL string `json:"approval_url"`
}

// SubscriptionDetails is the provider's current view of a subscription.
type SubscriptionDetails struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	NextBillingTime string `json:"next_billing_time"`
}

// Client calls the payment provider's REST API.
type Client struct {
	baseURL       string
	clientID      string
	clientSecret  string
	planID        string
	webhookSecret string
	httpClient    *http.Client
}

// APIError represents a provider error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Config holds provider credentials and endpoints.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	PlanID        string
	WebhookSecret string
	Timeout       time.Duration
}

// NewClient constructs a payment provider client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		planID:        cfg.PlanID,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// CreateSubscription opens a new subscription for the user and returns the
// approval URL the user must visit to confirm payment.
func (c *Client) CreateSubscription(ctx context.Context, userID string) (CreatedSubscription, error) {
	payload := map[string]string{
		"plan_id":   c.planID,
		"custom_id": userID,
	}
	var resp CreatedSubscription
	if err := c.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions", payload, &resp); err != nil {
		return CreatedSubscription{}, err
	}
	return resp, nil
}

// CancelSubscription cancels the subscription at the provider. A nil error
// means the provider confirmed the cancellation.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	payload := map[string]string{"reason": reason}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/cancel", subscriptionID)
	return c.doJSON(ctx, http.MethodPost, path, payload, nil)
}

// GetSubscriptionDetails fetches the provider's current subscription state.
func (c *Client) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (SubscriptionDetails, error) {
	var resp struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
		} `json:"billing_info"`
	}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s", subscriptionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return SubscriptionDetails{}, err
	}
	return SubscriptionDetails{
		ID:              resp.ID,
		Status:          resp.Status,
		NextBillingTime: resp.BillingInfo.NextBillingTime,
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature of a webhook body
// using constant-time comparison. An empty configured secret rejects all
// webhooks rather than accepting them unsigned.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(c.webhookSecret, body, signature)
}

// VerifySignature is the standalone form of webhook verification.
func VerifySignature(secret string, body []byte, signature string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// SignBody computes the signature the provider would attach; used by tests
// and by the sandbox webhook replayer.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
