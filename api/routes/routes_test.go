package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories/memory"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
	"github.com/ggnetworks/hotspot-billing-backend/internal/utils"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/events"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/netcontroller"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/paygateway"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/phonelock"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/smsgateway"
)

const webhookSecret = "wh-test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(webhookSecret), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpiresIn: 3600},
		Gateway: config.GatewayConfig{
			WebhookSecretHash: string(hash),
			Timeout:           time.Second,
		},
		Payment: config.PaymentConfig{
			AuthorizationTimeout: 120 * time.Second,
			MaxVerifyAttempts:    3,
			MaxIssueAttempts:     5,
			SweepInterval:        10 * time.Second,
			RetryBaseDelay:       time.Millisecond,
		},
		Voucher: config.VoucherConfig{Prefix: "GG", CodeLength: 8},
	}

	pkgRepo := memory.NewPackageRepository()
	catalog := services.NewCatalogService(pkgRepo)
	require.NoError(t, catalog.EnsureDefaults(context.Background()))

	voucherSvc := services.NewVoucherService(memory.NewVoucherRepository(), pkgRepo, cfg)
	activationSvc := services.NewActivationService(netcontroller.NewMockController(), memory.NewSessionRepository(), voucherSvc, cfg)
	notificationSvc := services.NewNotificationService(memory.NewNotificationRepository(), smsgateway.NewMockGateway(), cfg)
	paymentSvc := services.NewPaymentOrchestrator(
		memory.NewTransactionRepository(), voucherSvc, activationSvc, notificationSvc,
		catalog, paygateway.NewMockGateway(), phonelock.NewMemoryGuard(), events.NewNoopPublisher(), cfg,
	)

	router := SetupRouter(cfg, HandlerDependencies{
		PaymentService:      paymentSvc,
		VoucherService:      voucherSvc,
		ActivationService:   activationSvc,
		NotificationService: notificationSvc,
		CatalogService:      catalog,
	})
	return router, cfg
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/hotspot/purchase", gin.H{
		"packageId":     "daily-1",
		"phoneNumber":   "0742000111",
		"deviceMac":     "aa:bb:cc:dd:ee:01",
		"paymentMethod": "mpesa",
		"amount":        "2000",
		"currency":      "TZS",
	}, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	require.NotEmpty(t, tx.TransactionID)

	// Callback without the shared secret is rejected
	cb := gin.H{
		"order_id":       tx.TransactionID,
		"reference":      tx.GatewayReference,
		"payment_status": "COMPLETED",
	}
	w = doJSON(router, http.MethodPost, "/api/v1/payments/callback", cb, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/payments/callback", cb,
		map[string]string{"x-webhook-secret": webhookSecret})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/hotspot/purchase/"+tx.TransactionID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var final models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
	assert.Equal(t, models.StateCompleted, final.State)

	// Status polling for an unknown id
	w = doJSON(router, http.MethodGet, "/api/v1/hotspot/purchase/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseValidationOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/hotspot/purchase", gin.H{
		"packageId":     "daily-1",
		"phoneNumber":   "not-a-phone",
		"deviceMac":     "aa:bb:cc:dd:ee:01",
		"paymentMethod": "mpesa",
		"amount":        "2000",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing required fields fail binding
	w = doJSON(router, http.MethodPost, "/api/v1/hotspot/purchase", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPackagesOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/hotspot/packages", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pkgs []models.InternetPackage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkgs))
	assert.Len(t, pkgs, 4)
}

func TestValidateVoucherOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	// Unknown codes are reported invalid, not an error
	w := doJSON(router, http.MethodPost, "/api/v1/hotspot/voucher/validate", gin.H{
		"code":      "GGZZZZZZ",
		"deviceMac": "AA:BB:CC:DD:EE:01",
		"ipAddress": "10.5.50.21",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.VoucherValidation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Valid)

	w = doJSON(router, http.MethodPost, "/api/v1/hotspot/voucher/validate", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireJWT(t *testing.T) {
	router, cfg := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/notifications/status/PENDING", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := utils.GenerateJWT("operator-1", "admin", cfg)
	require.NoError(t, err)

	w = doJSON(router, http.MethodGet, "/api/v1/notifications/status/PENDING", nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/notifications/status/BOGUS", nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
