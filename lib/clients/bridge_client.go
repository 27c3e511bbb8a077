package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"homecare/lib/models"
)

// Messenger sends WhatsApp text messages. The bridge logs the outbound chat
// row itself and returns it, with status failed when delivery to WhatsApp
// did not go through.
type Messenger interface {
	Send(ctx context.Context, in models.SendMessageInput) (*models.WhatsappChat, error)
}

// APIKeyHeader authenticates lambdas against the bridge.
const APIKeyHeader = "X-Api-Key"

type BridgeClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewBridgeClient(baseURL, apiKey string, timeout time.Duration) *BridgeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewMessenger returns a bridge-backed Messenger, or nil when no bridge is
// configured so callers can skip notifications with a plain nil check.
func NewMessenger(baseURL, apiKey string, timeout time.Duration) Messenger {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return NewBridgeClient(baseURL, apiKey, timeout)
}

func (c *BridgeClient) Send(ctx context.Context, in models.SendMessageInput) (*models.WhatsappChat, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read bridge response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bridge responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chat models.WhatsappChat
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}
	return &chat, nil
}
