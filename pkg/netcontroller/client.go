package netcontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
)

// ErrControllerUnavailable marks a transient controller-side failure
var ErrControllerUnavailable = errors.New("access controller unavailable")

// GrantSpec describes a device admission request
type GrantSpec struct {
	VoucherCode string
	Mac         string
	Profile     string
	TimeLimit   time.Duration
}

// Controller abstracts the network access controller. Grant admits a device
// to the hotspot; Disconnect tears an admitted device down again.
type Controller interface {
	Grant(ctx context.Context, spec GrantSpec) (controllerRef string, err error)
	Disconnect(ctx context.Context, controllerRef string) error
}

// RouterClient drives a MikroTik-style REST endpoint
// (/rest/ip/hotspot/user, /rest/ip/hotspot/active).
type RouterClient struct {
	baseURL    string
	username   string
	password   string
	profile    string
	httpClient *http.Client
}

// NewRouterClient creates a new controller client
func NewRouterClient(cfg *config.Config) *RouterClient {
	return &RouterClient{
		baseURL:    cfg.Controller.BaseURL,
		username:   cfg.Controller.Username,
		password:   cfg.Controller.Password,
		profile:    cfg.Controller.HotspotProfile,
		httpClient: &http.Client{Timeout: cfg.Controller.Timeout},
	}
}

// Grant creates a hotspot user for the voucher and admits the device
func (c *RouterClient) Grant(ctx context.Context, spec GrantSpec) (string, error) {
	profile := spec.Profile
	if profile == "" {
		profile = c.profile
	}

	payload := map[string]string{
		"name":         spec.VoucherCode,
		"password":     spec.VoucherCode,
		"mac-address":  spec.Mac,
		"profile":      profile,
		"limit-uptime": formatUptime(spec.TimeLimit),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/rest/ip/hotspot/user", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrControllerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: controller returned %d", ErrControllerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("controller rejected grant: status %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:".id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode controller response: %w", err)
	}
	return created.ID, nil
}

// Disconnect removes an active hotspot entry. Missing entries are treated
// as already disconnected.
func (c *RouterClient) Disconnect(ctx context.Context, controllerRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/rest/ip/hotspot/active/"+controllerRef, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrControllerUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: controller returned %d", ErrControllerUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("controller rejected disconnect: status %d", resp.StatusCode)
	}
	return nil
}

// formatUptime renders a duration in the controller's HH:MM:SS form
func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// MockController is an in-process controller for development and testing
type MockController struct {
	mu sync.Mutex
	// FailGrants makes the next N Grant calls fail as unavailable
	FailGrants int
	grants     map[string]GrantSpec
	seq        int
}

// NewMockController creates a new mock controller
func NewMockController() *MockController {
	return &MockController{grants: make(map[string]GrantSpec)}
}

// Grant records the admission and returns a synthetic reference
func (c *MockController) Grant(ctx context.Context, spec GrantSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailGrants > 0 {
		c.FailGrants--
		return "", ErrControllerUnavailable
	}
	c.seq++
	ref := fmt.Sprintf("*%X", c.seq)
	c.grants[ref] = spec
	return ref, nil
}

// Disconnect removes a recorded admission. Unknown refs are a no-op.
func (c *MockController) Disconnect(ctx context.Context, controllerRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.grants, controllerRef)
	return nil
}

// GrantCount returns the number of live admissions
func (c *MockController) GrantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.grants)
}
