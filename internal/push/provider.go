package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExpoMessage is one batched request to the Expo push API: one notification
// delivered to every token in To.
type ExpoMessage struct {
	To    []string               `json:"to"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Sound string                 `json:"sound,omitempty"`
}

// ProviderError is a non-2xx response from the push provider
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("push provider returned %d: %s", e.StatusCode, e.Body)
}

// Provider is the HTTP client for the Expo push API
type Provider struct {
	apiURL string
	client *http.Client
}

func NewProvider(apiURL string, timeout time.Duration) *Provider {
	return &Provider{
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts one batched message to the provider. The response body is
// returned on 2xx; any other outcome is an error.
func (p *Provider) Send(ctx context.Context, msg ExpoMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push provider call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
