package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
	"github.com/ggnetworks/hotspot-billing-backend/internal/utils"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/events"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/paygateway"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/phonelock"
)

// Compile-time check to ensure PaymentOrchestrator implements PaymentService
var _ PaymentService = (*PaymentOrchestrator)(nil)

// PaymentOrchestrator drives the purchase lifecycle: gateway authorization,
// settlement, voucher issuance, and the decoupled activation/notification
// follow-ups. Events for a single transaction are serialized through a
// per-id lock so a client-submitted code, a gateway callback, and the
// expiry sweeper can never race into conflicting transitions.
type PaymentOrchestrator struct {
	txRepo          repositories.TransactionRepository
	voucherSvc      VoucherService
	activationSvc   ActivationService
	notificationSvc NotificationService
	catalogSvc      CatalogService
	gateway         paygateway.Gateway
	guard           phonelock.Guard
	publisher       events.Publisher
	cfg             *config.Config

	locks sync.Map // transactionId -> *sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPaymentOrchestrator creates a new PaymentOrchestrator
func NewPaymentOrchestrator(
	txRepo repositories.TransactionRepository,
	voucherSvc VoucherService,
	activationSvc ActivationService,
	notificationSvc NotificationService,
	catalogSvc CatalogService,
	gateway paygateway.Gateway,
	guard phonelock.Guard,
	publisher events.Publisher,
	cfg *config.Config,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		txRepo:          txRepo,
		voucherSvc:      voucherSvc,
		activationSvc:   activationSvc,
		notificationSvc: notificationSvc,
		catalogSvc:      catalogSvc,
		gateway:         gateway,
		guard:           guard,
		publisher:       publisher,
		cfg:             cfg,
		stopCh:          make(chan struct{}),
	}
}

// txLock returns the single-writer mutex for a transaction id
func (o *PaymentOrchestrator) txLock(transactionID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(transactionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// InitiatePurchase validates the request, opens a transaction, and starts
// the gateway authorization push
func (o *PaymentOrchestrator) InitiatePurchase(ctx context.Context, req *models.PurchaseRequest) (*models.Transaction, error) {
	if err := o.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	phone := utils.NormalizePhoneNumber(req.PhoneNumber)
	mac := utils.NormalizeMac(req.DeviceMac)

	// Compare-and-swap on the per-phone pending flag: one open purchase
	// per subscriber at a time.
	acquired, err := o.guard.Acquire(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending purchases: %w", err)
	}
	if !acquired {
		return nil, payerrors.ErrPendingPurchase
	}

	currency := req.Currency
	if currency == "" {
		currency = "TZS"
	}

	tx := &models.Transaction{
		TransactionID: uuid.NewString(),
		PackageID:     req.PackageID,
		PhoneNumber:   phone,
		DeviceMac:     mac,
		PaymentMethod: req.PaymentMethod,
		Amount:        req.Amount,
		Currency:      currency,
		State:         models.StateCreated,
	}
	if err := o.txRepo.Create(ctx, tx); err != nil {
		_ = o.guard.Release(ctx, phone)
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Gateway.Timeout)
	defer cancel()
	resp, err := o.gateway.InitiatePayment(callCtx, paygateway.PaymentRequest{
		OrderID:    tx.TransactionID,
		BuyerPhone: phone,
		Amount:     tx.Amount,
		Currency:   currency,
		Method:     req.PaymentMethod,
	})
	if err != nil {
		tx.State = models.StateFailed
		tx.FailureReason = "gateway initiation failed: " + err.Error()
		if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
			slog.Error("Failed to persist failed transaction", "transactionId", tx.TransactionID, "error", uerr)
		}
		_ = o.guard.Release(ctx, phone)
		if errors.Is(err, payerrors.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", payerrors.ErrGatewayUnavailable, err)
	}

	tx.GatewayReference = resp.GatewayReference
	tx.State = models.StateAwaitingAuthorization
	tx.ExpiresAt = time.Now().Add(o.cfg.Payment.AuthorizationTimeout)
	if err := o.txRepo.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	slog.Info("Purchase initiated", "transactionId", tx.TransactionID, "phone", phone, "package", req.PackageID, "gatewayReference", resp.GatewayReference)
	return tx, nil
}

// validateRequest rejects bad purchase input synchronously
func (o *PaymentOrchestrator) validateRequest(ctx context.Context, req *models.PurchaseRequest) error {
	if !utils.ValidPhoneNumber(req.PhoneNumber) {
		return payerrors.NewValidationError("phoneNumber", "not a valid Tanzanian phone number")
	}
	if !utils.ValidMac(utils.NormalizeMac(req.DeviceMac)) {
		return payerrors.NewValidationError("deviceMac", "not a valid MAC address")
	}
	amount := req.AmountDecimal()
	if amount.IsZero() || amount.IsNegative() {
		return payerrors.NewValidationError("amount", "must be a positive amount")
	}

	pkg, err := o.catalogSvc.GetPackage(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, payerrors.ErrNotFound) {
			return payerrors.NewValidationError("packageId", "unknown package")
		}
		return err
	}
	if !pkg.Active {
		return payerrors.NewValidationError("packageId", "package is not available")
	}
	if !amount.Equal(pkg.PriceDecimal()) {
		return payerrors.NewValidationError("amount", "does not match package price")
	}
	return nil
}

// SubmitAuthorizationCode forwards an explicit PIN/code step to the gateway.
// Verification is bounded; exhausting the attempt budget is a terminal decline.
func (o *PaymentOrchestrator) SubmitAuthorizationCode(ctx context.Context, transactionID, code string) (*models.Transaction, error) {
	mu := o.txLock(transactionID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := o.txRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.State.IsTerminal() {
		return nil, payerrors.ErrTerminalState
	}
	if tx.State != models.StateAwaitingAuthorization && tx.State != models.StateVerifying {
		return nil, payerrors.NewValidationError("state", fmt.Sprintf("transaction is %s, not awaiting authorization", tx.State))
	}

	if tx.State == models.StateAwaitingAuthorization {
		tx.State = models.StateVerifying
		if err := o.txRepo.Update(ctx, tx); err != nil {
			return nil, err
		}
	}

	for {
		tx.VerifyAttempts++
		if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
			slog.Error("Failed to persist verify attempt", "transactionId", transactionID, "error", uerr)
		}

		callCtx, cancel := o.gatewayCallContext(ctx, tx)
		err = o.gateway.VerifyAuthorization(callCtx, transactionID, code)
		cancel()

		if err == nil {
			o.settleLocked(ctx, tx, tx.GatewayReference, "")
			return tx, nil
		}

		if tx.VerifyAttempts >= o.cfg.Payment.MaxVerifyAttempts {
			tx.State = models.StateFailed
			tx.FailureReason = "verification attempts exhausted: " + err.Error()
			if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
				slog.Error("Failed to persist declined transaction", "transactionId", transactionID, "error", uerr)
			}
			o.releaseGuard(tx)
			return nil, payerrors.ErrPaymentDeclined
		}

		if errors.Is(err, payerrors.ErrPaymentDeclined) {
			// Wrong code. The transaction stays in Verifying; the subscriber
			// may resubmit within the budget.
			return nil, payerrors.ErrPaymentDeclined
		}

		// Transient gateway failure: back off and retry within the budget.
		delay := o.cfg.Payment.RetryBaseDelay << uint(tx.VerifyAttempts-1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HandleGatewayCallback applies an asynchronous settlement confirmation.
// Duplicates, late arrivals, and callbacks for terminal transactions are
// acknowledged as no-ops so the provider's at-least-once delivery never
// double-issues a voucher.
func (o *PaymentOrchestrator) HandleGatewayCallback(ctx context.Context, payload GatewayCallback) error {
	tx, err := o.lookupCallbackTransaction(ctx, payload)
	if err != nil {
		if errors.Is(err, payerrors.ErrNotFound) {
			slog.Warn("Callback for unknown transaction", "orderId", payload.TransactionID, "reference", payload.GatewayReference)
			return nil
		}
		return err
	}

	mu := o.txLock(tx.TransactionID)
	mu.Lock()
	defer mu.Unlock()

	// Reload under the lock; a concurrent event may have advanced the state.
	tx, err = o.txRepo.FindByTransactionID(ctx, tx.TransactionID)
	if err != nil {
		return err
	}

	dedupeRef := payload.GatewayReference
	if dedupeRef == "" {
		dedupeRef = payload.GatewayTxnID
	}
	if tx.State.IsTerminal() {
		slog.Info("Late callback for finalized transaction ignored", "transactionId", tx.TransactionID, "state", tx.State, "reference", dedupeRef)
		return nil
	}

	switch strings.ToUpper(payload.Status) {
	case "COMPLETED", "SETTLED", "SUCCESS":
		// A settled transaction short of Completed means voucher issuance
		// was interrupted (crash, exhausted retries). The redelivered
		// confirmation resumes issuance rather than being dropped as a
		// duplicate.
		if tx.State == models.StateSettled || tx.State == models.StateVoucherIssuing {
			o.issueVoucherLocked(context.WithoutCancel(ctx), tx)
			return nil
		}
		if tx.HasProcessedRef(dedupeRef) {
			slog.Info("Duplicate callback ignored", "transactionId", tx.TransactionID, "reference", dedupeRef)
			return nil
		}
		o.settleLocked(ctx, tx, dedupeRef, payload.GatewayTxnID)
	case "FAILED", "DECLINED", "CANCELLED":
		if tx.HasProcessedRef(dedupeRef) {
			slog.Info("Duplicate callback ignored", "transactionId", tx.TransactionID, "reference", dedupeRef)
			return nil
		}
		moved, terr := o.txRepo.TransitionState(ctx, tx.TransactionID,
			[]models.TransactionState{models.StateAwaitingAuthorization, models.StateVerifying},
			models.StateFailed)
		if terr != nil {
			return terr
		}
		if moved {
			tx.State = models.StateFailed
			tx.FailureReason = "declined by gateway callback"
			tx.ProcessedRefs = append(tx.ProcessedRefs, dedupeRef)
			if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
				slog.Error("Failed to persist callback decline", "transactionId", tx.TransactionID, "error", uerr)
			}
			o.releaseGuard(tx)
		}
	default:
		slog.Info("Callback with non-final status ignored", "transactionId", tx.TransactionID, "status", payload.Status)
	}
	return nil
}

// lookupCallbackTransaction resolves the callback to a transaction by order
// id first, then by gateway reference (the reference may arrive late)
func (o *PaymentOrchestrator) lookupCallbackTransaction(ctx context.Context, payload GatewayCallback) (*models.Transaction, error) {
	if payload.TransactionID != "" {
		tx, err := o.txRepo.FindByTransactionID(ctx, payload.TransactionID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, payerrors.ErrNotFound) {
			return nil, err
		}
	}
	if payload.GatewayReference != "" {
		return o.txRepo.FindByGatewayReference(ctx, payload.GatewayReference)
	}
	return nil, payerrors.ErrNotFound
}

// settleLocked advances a transaction through Settled -> VoucherIssuing ->
// Completed. The caller must hold the transaction's lock. The transition to
// Settled is a compare-and-swap so a racing sweeper or duplicate callback
// resolves to exactly one winner.
func (o *PaymentOrchestrator) settleLocked(ctx context.Context, tx *models.Transaction, dedupeRef, gatewayTxnID string) {
	moved, err := o.txRepo.TransitionState(ctx, tx.TransactionID,
		[]models.TransactionState{models.StateAwaitingAuthorization, models.StateVerifying},
		models.StateSettled)
	if err != nil {
		slog.Error("Failed to transition to settled", "transactionId", tx.TransactionID, "error", err)
		return
	}
	if !moved {
		slog.Info("Settlement skipped, transaction already transitioned", "transactionId", tx.TransactionID)
		return
	}

	tx.State = models.StateSettled
	tx.SettledAt = time.Now()
	if gatewayTxnID != "" {
		tx.GatewayTxnID = gatewayTxnID
	}
	if dedupeRef != "" {
		tx.ProcessedRefs = append(tx.ProcessedRefs, dedupeRef)
	}
	if err := o.txRepo.Update(ctx, tx); err != nil {
		slog.Error("Failed to persist settlement", "transactionId", tx.TransactionID, "error", err)
	}

	// Payment is committed; the subscriber may open a new purchase.
	o.releaseGuard(tx)

	o.publisher.PublishPaymentSettled(events.PaymentSettledEvent{
		TransactionID:    tx.TransactionID,
		GatewayReference: tx.GatewayReference,
		PhoneNumber:      tx.PhoneNumber,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		SettledAt:        tx.SettledAt,
	})

	// The payment is committed from here on; issuance must not be aborted
	// by the caller hanging up.
	o.issueVoucherLocked(context.WithoutCancel(ctx), tx)
}

// issueVoucherLocked mints and binds the voucher for a settled transaction,
// retrying transient storage failures with backoff. The gateway is never
// re-contacted: the payment is settled and must not be lost. A transaction
// already in VoucherIssuing re-enters here when a redelivered confirmation
// resumes an interrupted issuance.
func (o *PaymentOrchestrator) issueVoucherLocked(ctx context.Context, tx *models.Transaction) {
	moved, err := o.txRepo.TransitionState(ctx, tx.TransactionID,
		[]models.TransactionState{models.StateSettled},
		models.StateVoucherIssuing)
	if err != nil {
		slog.Error("Failed to transition to voucher issuing", "transactionId", tx.TransactionID, "error", err)
		return
	}
	if !moved && tx.State != models.StateVoucherIssuing {
		return
	}
	tx.State = models.StateVoucherIssuing

	var voucher *models.Voucher
	for attempt := 1; attempt <= o.cfg.Payment.MaxIssueAttempts; attempt++ {
		tx.IssueAttempts = attempt
		voucher, err = o.voucherSvc.GenerateVoucher(ctx, tx)
		if err == nil {
			err = o.voucherSvc.BindVoucher(ctx, voucher.Code, tx.PhoneNumber, tx.DeviceMac)
		}
		if err == nil {
			break
		}
		slog.Warn("Voucher issuance failed, retrying", "transactionId", tx.TransactionID, "attempt", attempt, "error", err)
		select {
		case <-time.After(o.cfg.Payment.RetryBaseDelay << uint(attempt-1)):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		// The settled payment is preserved; the transaction stays in
		// VoucherIssuing for operational recovery.
		slog.Error("Voucher issuance exhausted retries", "transactionId", tx.TransactionID, "error", err)
		if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
			slog.Error("Failed to persist issue attempts", "transactionId", tx.TransactionID, "error", uerr)
		}
		return
	}

	if moved, terr := o.txRepo.TransitionState(ctx, tx.TransactionID,
		[]models.TransactionState{models.StateVoucherIssuing},
		models.StateCompleted); terr != nil || !moved {
		if terr != nil {
			slog.Error("Failed to complete transaction", "transactionId", tx.TransactionID, "error", terr)
		}
		return
	}
	tx.State = models.StateCompleted
	tx.CompletedAt = time.Now()
	if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
		slog.Error("Failed to persist completion", "transactionId", tx.TransactionID, "error", uerr)
	}

	slog.Info("Purchase completed", "transactionId", tx.TransactionID, "voucherCode", voucher.Code)

	o.publisher.PublishVoucherIssued(events.VoucherIssuedEvent{
		TransactionID: tx.TransactionID,
		VoucherCode:   voucher.Code,
		PackageID:     tx.PackageID,
		PhoneNumber:   tx.PhoneNumber,
		IssuedAt:      time.Now(),
	})

	// Activation and notification are decoupled follow-ups with their own
	// retry policies. Their failure never unwinds the committed purchase.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, gerr := o.activationSvc.Grant(context.Background(), voucher.Code, tx.DeviceMac); gerr != nil {
			slog.Warn("Activation deferred to background worker", "transactionId", tx.TransactionID, "error", gerr)
		}
	}()
	if nerr := o.notificationSvc.Enqueue(ctx, tx.TransactionID, tx.PhoneNumber, voucher.Code); nerr != nil {
		slog.Error("Failed to enqueue voucher notification", "transactionId", tx.TransactionID, "error", nerr)
	}
}

// CancelPurchase aborts a purchase before settlement
func (o *PaymentOrchestrator) CancelPurchase(ctx context.Context, transactionID string) error {
	mu := o.txLock(transactionID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := o.txRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}

	moved, err := o.txRepo.TransitionState(ctx, transactionID,
		[]models.TransactionState{models.StateCreated, models.StateAwaitingAuthorization},
		models.StateCancelled)
	if err != nil {
		return err
	}
	if !moved {
		return payerrors.ErrTerminalState
	}

	o.releaseGuard(tx)
	slog.Info("Purchase cancelled", "transactionId", transactionID)
	return nil
}

// GetTransaction retrieves a transaction for status polling
func (o *PaymentOrchestrator) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return o.txRepo.FindByTransactionID(ctx, transactionID)
}

// Start launches the expiry sweeper
func (o *PaymentOrchestrator) Start() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.Payment.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.SweepExpired(context.Background())
			case <-o.stopCh:
				return
			}
		}
	}()
}

// Stop shuts the sweeper down and waits for in-flight follow-ups
func (o *PaymentOrchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
}

// SweepExpired expires transactions that were never authorized within the
// allowed window. Safe to run concurrently with an in-flight callback for
// the same transaction: the state transition is a compare-and-swap and
// whichever side moves first wins.
func (o *PaymentOrchestrator) SweepExpired(ctx context.Context) {
	expired, err := o.txRepo.FindExpired(ctx, models.StateAwaitingAuthorization, time.Now())
	if err != nil {
		slog.Error("Expiry sweep failed", "error", err)
		return
	}

	for _, tx := range expired {
		mu := o.txLock(tx.TransactionID)
		mu.Lock()
		moved, terr := o.txRepo.TransitionState(ctx, tx.TransactionID,
			[]models.TransactionState{models.StateAwaitingAuthorization},
			models.StateExpired)
		if terr != nil {
			slog.Error("Failed to expire transaction", "transactionId", tx.TransactionID, "error", terr)
		} else if moved {
			tx.State = models.StateExpired
			tx.FailureReason = payerrors.ErrAuthorizationTimeout.Error()
			if uerr := o.txRepo.Update(ctx, tx); uerr != nil {
				slog.Error("Failed to persist expiry", "transactionId", tx.TransactionID, "error", uerr)
			}
			o.releaseGuard(tx)
			slog.Info("Transaction expired", "transactionId", tx.TransactionID)
		}
		mu.Unlock()
	}
}

// gatewayCallContext bounds a gateway call by both the per-call timeout and
// the transaction's own expiry, so no call outlives its transaction
func (o *PaymentOrchestrator) gatewayCallContext(ctx context.Context, tx *models.Transaction) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Gateway.Timeout)
	if tx.ExpiresAt.IsZero() {
		return callCtx, cancel
	}
	deadlineCtx, cancel2 := context.WithDeadline(callCtx, tx.ExpiresAt)
	return deadlineCtx, func() { cancel2(); cancel() }
}

func (o *PaymentOrchestrator) releaseGuard(tx *models.Transaction) {
	if err := o.guard.Release(context.Background(), tx.PhoneNumber); err != nil {
		slog.Error("Failed to release phone guard", "phone", tx.PhoneNumber, "error", err)
	}
}
