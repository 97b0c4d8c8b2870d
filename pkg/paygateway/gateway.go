package paygateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
)

// PaymentRequest is the order sent to the mobile-money provider
type PaymentRequest struct {
	OrderID     string `json:"order_id"`
	BuyerPhone  string `json:"buyer_phone"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	WebhookURL  string `json:"webhook_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// PaymentResponse is the provider's acknowledgement of an initiated order
type PaymentResponse struct {
	OrderID          string `json:"order_id"`
	GatewayReference string `json:"reference"`
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
}

// OrderStatus is the provider's view of an order queried out of band
type OrderStatus struct {
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	Reference     string `json:"reference"`
	Channel       string `json:"channel,omitempty"`
}

// Gateway represents a mobile-money payment gateway
type Gateway interface {
	// InitiatePayment starts an authorization push to the subscriber's handset
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)

	// VerifyAuthorization forwards an explicit PIN/code step to the provider
	VerifyAuthorization(ctx context.Context, orderID, code string) error

	// GetOrderStatus queries the provider for the current order status
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
}

// ZenoClient talks to a ZenoPay-style mobile money API
type ZenoClient struct {
	baseURL         string
	apiKey          string
	mobileMoneyPath string
	orderStatusPath string
	webhookURL      string
	httpClient      *http.Client
}

// NewZenoClient creates a new ZenoPay-style gateway client
func NewZenoClient(cfg *config.Config, webhookURL string) *ZenoClient {
	return &ZenoClient{
		baseURL:         cfg.Gateway.BaseURL,
		apiKey:          cfg.Gateway.APIKey,
		mobileMoneyPath: cfg.Gateway.MobileMoneyPath,
		orderStatusPath: cfg.Gateway.OrderStatusPath,
		webhookURL:      webhookURL,
		httpClient:      &http.Client{Timeout: cfg.Gateway.Timeout},
	}
}

// InitiatePayment starts a mobile money order
func (c *ZenoClient) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if req.WebhookURL == "" {
		req.WebhookURL = c.webhookURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.mobileMoneyPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payerrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", payerrors.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", payerrors.ErrPaymentDeclined, string(raw))
	}

	var out PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &out, nil
}

// VerifyAuthorization submits a PIN/code verification step
func (c *ZenoClient) VerifyAuthorization(ctx context.Context, orderID, code string) error {
	body, err := json.Marshal(map[string]string{
		"order_id": orderID,
		"code":     code,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.mobileMoneyPath+"/verify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", payerrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", payerrors.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return payerrors.ErrPaymentDeclined
	}
	return nil
}

// GetOrderStatus queries the order-status endpoint
func (c *ZenoClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.orderStatusPath+"?order_id="+orderID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payerrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned %d", payerrors.ErrGatewayUnavailable, resp.StatusCode)
	}

	var out OrderStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode order status: %w", err)
	}
	return &out, nil
}

// MockGateway is an in-process gateway for development and testing
type MockGateway struct {
	// FailInitiate makes InitiatePayment fail as unavailable
	FailInitiate bool
	// DeclineVerify makes VerifyAuthorization decline
	DeclineVerify bool
	// VerifyErr overrides the VerifyAuthorization result entirely
	VerifyErr error
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// InitiatePayment pretends to push an authorization request
func (g *MockGateway) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if g.FailInitiate {
		return nil, payerrors.ErrGatewayUnavailable
	}
	return &PaymentResponse{
		OrderID:          req.OrderID,
		GatewayReference: "MOCK-" + uuid.NewString()[:12],
		Status:           "PENDING",
	}, nil
}

// VerifyAuthorization pretends to verify a PIN/code step
func (g *MockGateway) VerifyAuthorization(ctx context.Context, orderID, code string) error {
	if g.VerifyErr != nil {
		return g.VerifyErr
	}
	if g.DeclineVerify {
		return payerrors.ErrPaymentDeclined
	}
	return nil
}

// GetOrderStatus pretends the order settled immediately
func (g *MockGateway) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	return &OrderStatus{
		OrderID:       orderID,
		PaymentStatus: "COMPLETED",
		Reference:     fmt.Sprintf("MOCK-REF-%d", time.Now().UnixNano()),
	}, nil
}
