// Package provider talks to the external blockchain-index provider
// (spec.md §1, §6 "out of scope" contract): the service that supplies raw
// webhook payloads and exposes an address-registration API for the set of
// watched KOL wallets.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a bare http.Client wrapper, grounded on the same
// http.Client{Timeout: ...} idiom the pack uses for exchange API clients
// (gromovart-crypto-exchange-screener-bot/internal/api/exchanges/bybit/client.go)
// rather than a richer HTTP library no example in the pack pulls in for
// this kind of request/response JSON API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type webhookAddressRequest struct {
	WebhookID        string   `json:"webhookID"`
	AccountAddresses []string `json:"accountAddresses"`
}

type webhook struct {
	WebhookID        string   `json:"webhookID"`
	AccountAddresses []string `json:"accountAddresses"`
}

// AppendAddresses adds addresses to a webhook's watched-address list.
func (c *Client) AppendAddresses(ctx context.Context, webhookID string, addresses []string) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/v0/webhooks/%s/addresses", webhookID),
		webhookAddressRequest{WebhookID: webhookID, AccountAddresses: addresses}, nil)
}

// RemoveAddresses removes addresses from a webhook's watched-address list.
func (c *Client) RemoveAddresses(ctx context.Context, webhookID string, addresses []string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/v0/webhooks/%s/addresses", webhookID),
		webhookAddressRequest{WebhookID: webhookID, AccountAddresses: addresses}, nil)
}

// CreateWebhook registers a new webhook with the provider.
func (c *Client) CreateWebhook(ctx context.Context, url string, addresses []string) (string, error) {
	var resp webhook
	req := struct {
		WebhookURL       string   `json:"webhookURL"`
		AccountAddresses []string `json:"accountAddresses"`
	}{WebhookURL: url, AccountAddresses: addresses}
	if err := c.doJSON(ctx, http.MethodPost, "/v0/webhooks", req, &resp); err != nil {
		return "", err
	}
	return resp.WebhookID, nil
}

// GetAllWebhookAddresses returns the provider's current view of a
// webhook's watched addresses, used by Registry.SyncWithProvider (spec.md
// §4.2) to reconcile drift.
func (c *Client) GetAllWebhookAddresses(ctx context.Context, webhookID string) ([]string, error) {
	var resp webhook
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v0/webhooks/%s", webhookID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.AccountAddresses, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal provider request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+c.authQuery(), reader)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func (c *Client) authQuery() string {
	if c.apiKey == "" {
		return ""
	}
	return "?api-key=" + c.apiKey
}
