package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories/memory"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/events"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/netcontroller"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/paygateway"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/phonelock"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/smsgateway"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{Timeout: time.Second},
		Payment: config.PaymentConfig{
			AuthorizationTimeout: 120 * time.Second,
			MaxVerifyAttempts:    3,
			MaxIssueAttempts:     5,
			SweepInterval:        10 * time.Second,
			RetryBaseDelay:       time.Millisecond,
		},
		Voucher: config.VoucherConfig{Prefix: "GG", CodeLength: 8},
	}
}

type orchestratorEnv struct {
	svc         *PaymentOrchestrator
	txRepo      *memory.TransactionRepository
	voucherRepo *memory.VoucherRepository
	sessionRepo *memory.SessionRepository
	jobRepo     *memory.NotificationRepository
	gateway     *paygateway.MockGateway
	controller  *netcontroller.MockController
	sms         *smsgateway.MockGateway
}

func newOrchestratorEnv(t *testing.T) *orchestratorEnv {
	t.Helper()
	cfg := testConfig()

	env := &orchestratorEnv{
		txRepo:      memory.NewTransactionRepository(),
		voucherRepo: memory.NewVoucherRepository(),
		sessionRepo: memory.NewSessionRepository(),
		jobRepo:     memory.NewNotificationRepository(),
		gateway:     paygateway.NewMockGateway(),
		controller:  netcontroller.NewMockController(),
		sms:         smsgateway.NewMockGateway(),
	}

	pkgRepo := memory.NewPackageRepository()
	catalog := NewCatalogService(pkgRepo)
	require.NoError(t, catalog.EnsureDefaults(context.Background()))

	voucherSvc := NewVoucherService(env.voucherRepo, pkgRepo, cfg)
	activationSvc := NewActivationService(env.controller, env.sessionRepo, voucherSvc, cfg)
	notificationSvc := NewNotificationService(env.jobRepo, env.sms, cfg)

	env.svc = NewPaymentOrchestrator(
		env.txRepo, voucherSvc, activationSvc, notificationSvc,
		catalog, env.gateway, phonelock.NewMemoryGuard(), events.NewNoopPublisher(), cfg,
	)
	return env
}

func dailyPlanRequest() *models.PurchaseRequest {
	return &models.PurchaseRequest{
		PackageID:     "daily-1",
		PhoneNumber:   "0742000111",
		DeviceMac:     "aa:bb:cc:dd:ee:01",
		PaymentMethod: "mpesa",
		Amount:        "2000",
		Currency:      "TZS",
	}
}

func settledCallback(tx *models.Transaction) GatewayCallback {
	return GatewayCallback{
		TransactionID:    tx.TransactionID,
		GatewayReference: tx.GatewayReference,
		Status:           "COMPLETED",
		GatewayTxnID:     "CEJ3I3SETSN",
		Channel:          "MPESA-TZ",
	}
}

func TestInitiatePurchase_StartsAuthorization(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingAuthorization, tx.State)
	assert.NotEmpty(t, tx.TransactionID)
	assert.NotEmpty(t, tx.GatewayReference)
	assert.Equal(t, "255742000111", tx.PhoneNumber)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", tx.DeviceMac)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), tx.ExpiresAt, 2*time.Second)
}

func TestInitiatePurchase_RejectsBadInput(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.PurchaseRequest)
	}{
		{"bad phone", func(r *models.PurchaseRequest) { r.PhoneNumber = "12345" }},
		{"bad mac", func(r *models.PurchaseRequest) { r.DeviceMac = "not-a-mac" }},
		{"unknown package", func(r *models.PurchaseRequest) { r.PackageID = "nope-1" }},
		{"wrong amount", func(r *models.PurchaseRequest) { r.Amount = "1500" }},
		{"negative amount", func(r *models.PurchaseRequest) { r.Amount = "-2000" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := dailyPlanRequest()
			tc.mutate(req)
			_, err := env.svc.InitiatePurchase(ctx, req)
			assert.True(t, payerrors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestInitiatePurchase_OnePendingPurchasePerPhone(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	_, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	_, err = env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	assert.ErrorIs(t, err, payerrors.ErrPendingPurchase)

	// A different subscriber is unaffected
	other := dailyPlanRequest()
	other.PhoneNumber = "0742000222"
	other.DeviceMac = "AA:BB:CC:DD:EE:02"
	_, err = env.svc.InitiatePurchase(ctx, other)
	assert.NoError(t, err)
}

func TestInitiatePurchase_GatewayDownReleasesGuard(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	env.gateway.FailInitiate = true
	_, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.ErrorIs(t, err, payerrors.ErrGatewayUnavailable)

	// The failed attempt must not leave the phone locked
	env.gateway.FailInitiate = false
	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingAuthorization, tx.State)
}

func TestHandleGatewayCallback_SettlesAndIssuesVoucher(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleGatewayCallback(ctx, settledCallback(tx)))

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, final.State)
	assert.False(t, final.SettledAt.IsZero())
	assert.False(t, final.CompletedAt.IsZero())
	assert.Equal(t, "CEJ3I3SETSN", final.GatewayTxnID)

	voucher, err := env.voucherRepo.FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "255742000111", voucher.BoundPhone)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", voucher.BoundMac)
	assert.Equal(t, "Daily Plan", voucher.PackageName)
	assert.Len(t, voucher.Code, 8)

	job, err := env.jobRepo.FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, job.Status)
	assert.Contains(t, job.Content, voucher.Code)

	// Network admission runs as a decoupled follow-up
	require.Eventually(t, func() bool {
		return env.controller.GrantCount() == 1
	}, testWait, testTick)

	session, err := env.sessionRepo.FindOpenByVoucherCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", session.DeviceMac)
}

func TestHandleGatewayCallback_DuplicateDeliveryIsIdempotent(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	cb := settledCallback(tx)
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, cb))
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, cb))
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, cb))

	assert.Equal(t, 1, env.voucherRepo.Count())

	jobs, err := env.jobRepo.FindByStatus(ctx, models.NotificationPending, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHandleGatewayCallback_ConcurrentDuplicates(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	cb := settledCallback(tx)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.svc.HandleGatewayCallback(ctx, cb))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.voucherRepo.Count())

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, final.State)
}

func TestHandleGatewayCallback_UnknownOrderIsAcknowledged(t *testing.T) {
	env := newOrchestratorEnv(t)

	err := env.svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		TransactionID:    "never-seen",
		GatewayReference: "REF-404",
		Status:           "COMPLETED",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, env.voucherRepo.Count())
}

func TestHandleGatewayCallback_DeclineIsTerminal(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	cb := settledCallback(tx)
	cb.Status = "FAILED"
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, cb))

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, final.State)
	assert.Equal(t, 0, env.voucherRepo.Count())

	// A settlement arriving after the decline must not mint a voucher
	late := settledCallback(tx)
	late.GatewayReference = "LATE-REF"
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, late))
	assert.Equal(t, 0, env.voucherRepo.Count())

	// The phone is free for a fresh attempt
	_, err = env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	assert.NoError(t, err)
}

func TestSubmitAuthorizationCode_Settles(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "1234")
	require.NoError(t, err)

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, final.State)
	assert.Equal(t, 1, env.voucherRepo.Count())
}

func TestSubmitAuthorizationCode_BoundedDeclines(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	env.gateway.DeclineVerify = true

	// Two wrong codes leave the purchase retryable; the transaction stays
	// in Verifying rather than dropping back to an earlier state
	for i := 0; i < 2; i++ {
		_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "0000")
		require.ErrorIs(t, err, payerrors.ErrPaymentDeclined)

		cur, gerr := env.svc.GetTransaction(ctx, tx.TransactionID)
		require.NoError(t, gerr)
		assert.Equal(t, models.StateVerifying, cur.State)
	}

	// The third exhausts the budget
	_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "0000")
	require.ErrorIs(t, err, payerrors.ErrPaymentDeclined)

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, final.State)
	assert.Equal(t, 0, env.voucherRepo.Count())

	_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "1234")
	assert.ErrorIs(t, err, payerrors.ErrTerminalState)
}

func TestSubmitAuthorizationCode_RetryAfterDeclineSettles(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	env.gateway.DeclineVerify = true
	_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "0000")
	require.ErrorIs(t, err, payerrors.ErrPaymentDeclined)

	// The corrected code is accepted while the transaction is mid-verification
	env.gateway.DeclineVerify = false
	_, err = env.svc.SubmitAuthorizationCode(ctx, tx.TransactionID, "1234")
	require.NoError(t, err)

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, final.State)
	assert.Equal(t, 1, env.voucherRepo.Count())
}

// flakyVoucherService fails voucher generation a fixed number of times
// before delegating, simulating a voucher store outage.
type flakyVoucherService struct {
	VoucherService
	mu       sync.Mutex
	failures int
}

func (f *flakyVoucherService) GenerateVoucher(ctx context.Context, tx *models.Transaction) (*models.Voucher, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("voucher store unavailable")
	}
	f.mu.Unlock()
	return f.VoucherService.GenerateVoucher(ctx, tx)
}

func TestHandleGatewayCallback_ResumesInterruptedIssuance(t *testing.T) {
	cfg := testConfig()
	txRepo := memory.NewTransactionRepository()
	voucherRepo := memory.NewVoucherRepository()
	pkgRepo := memory.NewPackageRepository()
	catalog := NewCatalogService(pkgRepo)
	require.NoError(t, catalog.EnsureDefaults(context.Background()))

	// Enough failures to exhaust the first issuance budget plus one more
	// on resume, so recovery also has to ride out a retry backoff
	flaky := &flakyVoucherService{
		VoucherService: NewVoucherService(voucherRepo, pkgRepo, cfg),
		failures:       cfg.Payment.MaxIssueAttempts + 1,
	}
	activationSvc := NewActivationService(netcontroller.NewMockController(), memory.NewSessionRepository(), flaky, cfg)
	jobRepo := memory.NewNotificationRepository()
	notificationSvc := NewNotificationService(jobRepo, smsgateway.NewMockGateway(), cfg)
	svc := NewPaymentOrchestrator(
		txRepo, flaky, activationSvc, notificationSvc,
		catalog, paygateway.NewMockGateway(), phonelock.NewMemoryGuard(), events.NewNoopPublisher(), cfg,
	)

	ctx := context.Background()
	tx, err := svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	// Settlement succeeds but issuance exhausts its retries and parks
	require.NoError(t, svc.HandleGatewayCallback(ctx, settledCallback(tx)))

	parked, err := svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateVoucherIssuing, parked.State)
	assert.Equal(t, 0, voucherRepo.Count())

	// The provider redelivers the confirmation; issuance resumes and the
	// purchase completes even though the delivery context is already gone
	redeliverCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.HandleGatewayCallback(redeliverCtx, settledCallback(tx)))

	final, err := svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, final.State)
	assert.Equal(t, 1, voucherRepo.Count())

	voucher, err := voucherRepo.FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "255742000111", voucher.BoundPhone)

	job, err := jobRepo.FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Contains(t, job.Content, voucher.Code)
}

func TestCancelPurchase(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	require.NoError(t, env.svc.CancelPurchase(ctx, tx.TransactionID))

	final, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, final.State)

	// Cancelling twice, or settling a cancelled purchase, is refused
	assert.ErrorIs(t, env.svc.CancelPurchase(ctx, tx.TransactionID), payerrors.ErrTerminalState)
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, settledCallback(tx)))
	assert.Equal(t, 0, env.voucherRepo.Count())

	// The guard is released on cancel
	_, err = env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	assert.NoError(t, err)
}

func TestSweepExpired_NoLateVoucher(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	// Age the transaction past its authorization window
	aged, err := env.txRepo.FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	aged.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, env.txRepo.Update(ctx, aged))

	env.svc.SweepExpired(ctx)

	expired, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, expired.State)

	// A settlement confirmation arriving after expiry must not mint a voucher
	require.NoError(t, env.svc.HandleGatewayCallback(ctx, settledCallback(tx)))
	assert.Equal(t, 0, env.voucherRepo.Count())

	// The guard is released so the subscriber can retry
	_, err = env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	assert.NoError(t, err)
}

func TestSweepExpired_LeavesLiveTransactionsAlone(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()

	tx, err := env.svc.InitiatePurchase(ctx, dailyPlanRequest())
	require.NoError(t, err)

	env.svc.SweepExpired(ctx)

	cur, err := env.svc.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingAuthorization, cur.State)
}
