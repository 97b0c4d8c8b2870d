package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
)

// Gateway represents an SMS gateway interface
type Gateway interface {
	SendSMS(ctx context.Context, msisdn, message string) (string, error)
	GetDeliveryStatus(ctx context.Context, messageID string) (string, error)
}

// HTTPGateway sends messages through a JSON-over-HTTP SMS provider
type HTTPGateway struct {
	BaseURL    string
	APIKey     string
	SenderID   string
	httpClient *http.Client
}

// NewHTTPGateway creates a new HTTP SMS gateway
func NewHTTPGateway(cfg *config.Config) Gateway {
	return &HTTPGateway{
		BaseURL:    cfg.SMS.BaseURL,
		APIKey:     cfg.SMS.APIKey,
		SenderID:   cfg.SMS.SenderID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendSMS sends an SMS through the provider
func (g *HTTPGateway) SendSMS(ctx context.Context, msisdn, message string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"to":      msisdn,
		"from":    g.SenderID,
		"message": message,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payerrors.ErrNotificationFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: provider returned %d", payerrors.ErrNotificationFailure, resp.StatusCode)
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}
	return out.MessageID, nil
}

// GetDeliveryStatus gets the delivery status of a sent message
func (g *HTTPGateway) GetDeliveryStatus(ctx context.Context, messageID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/v1/messages/"+messageID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", g.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payerrors.ErrNotificationFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: provider returned %d", payerrors.ErrNotificationFailure, resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// MockGateway is an in-process SMS gateway for development and testing
type MockGateway struct {
	mu sync.Mutex
	// FailSends makes the next N SendSMS calls fail
	FailSends int
	sent      []string
}

// NewMockGateway creates a new mock SMS gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// SendSMS records the message and returns a synthetic message id
func (g *MockGateway) SendSMS(ctx context.Context, msisdn, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailSends > 0 {
		g.FailSends--
		return "", payerrors.ErrNotificationFailure
	}
	g.sent = append(g.sent, msisdn+": "+message)
	return fmt.Sprintf("MOCK-MSG-%d", time.Now().UnixNano()), nil
}

// GetDeliveryStatus always reports delivered
func (g *MockGateway) GetDeliveryStatus(ctx context.Context, messageID string) (string, error) {
	return "DELIVERED", nil
}

// SentMessages returns a copy of the recorded messages
func (g *MockGateway) SentMessages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.sent))
	copy(out, g.sent)
	return out
}
