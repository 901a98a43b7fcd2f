package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"telefwd/pkg/domain"
)

// Client calls the relay service over HTTP. The relay owns the actual
// Telegram MTProto sessions and the forwarding loop; this client only
// consumes its management API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// APIError represents a relay service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a relay client. timeout bounds every call; zero means
// 10 seconds.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyChannelAccess asks the relay whether the user's Telegram account can
// read the channel.
func (c *Client) VerifyChannelAccess(ctx context.Context, userID, channelID string) (bool, error) {
	payload := map[string]string{"userId": userID, "channelId": channelID}
	var resp struct {
		HasAccess bool `json:"hasAccess"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/relay/channels/verify", payload, &resp); err != nil {
		return false, err
	}
	return resp.HasAccess, nil
}

// GetUserChannels lists channels visible to the user's Telegram account.
func (c *Client) GetUserChannels(ctx context.Context, userID string) ([]domain.RelayChannel, error) {
	var resp struct {
		Channels []domain.RelayChannel `json:"channels"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/relay/channels?user_id="+userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// StartForwarding asks the relay to begin forwarding for the user.
func (c *Client) StartForwarding(ctx context.Context, userID string) error {
	payload := map[string]string{"userId": userID}
	return c.doJSON(ctx, http.MethodPost, "/relay/forwarding/start", payload, nil)
}

// StopForwarding asks the relay to stop forwarding for the user.
func (c *Client) StopForwarding(ctx context.Context, userID string) error {
	payload := map[string]string{"userId": userID}
	return c.doJSON(ctx, http.MethodPost, "/relay/forwarding/stop", payload, nil)
}

// CreateClient provisions a Telegram session for the user's phone number.
func (c *Client) CreateClient(ctx context.Context, userID, phoneNumber string) error {
	payload := map[string]string{"userId": userID, "phoneNumber": phoneNumber}
	return c.doJSON(ctx, http.MethodPost, "/relay/clients", payload, nil)
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
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = fmt.Sprintf("relay returned status %d", resp.StatusCode)
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
