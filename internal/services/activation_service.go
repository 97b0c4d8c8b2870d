package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
	"github.com/ggnetworks/hotspot-billing-backend/internal/utils"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/netcontroller"
)

const (
	grantMaxAttempts = 3
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	workerInterval   = 5 * time.Second
)

// Compile-time check to ensure ActivationServiceImpl implements ActivationService
var _ ActivationService = (*ActivationServiceImpl)(nil)

// grantRequest is a queued admission waiting for the controller to recover
type grantRequest struct {
	VoucherCode string
	Mac         string
}

// ActivationServiceImpl drives the network access controller
type ActivationServiceImpl struct {
	controller  netcontroller.Controller
	sessionRepo repositories.SessionRepository
	voucherSvc  VoucherService
	baseDelay   time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	// queue is process-local: pending grants are lost on restart. The
	// voucher stays valid, so the next portal validation re-admits the
	// device.
	queue  []grantRequest
	queued map[string]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewActivationService creates a new ActivationServiceImpl
func NewActivationService(controller netcontroller.Controller, sessionRepo repositories.SessionRepository, voucherSvc VoucherService, cfg *config.Config) *ActivationServiceImpl {
	return &ActivationServiceImpl{
		controller:  controller,
		sessionRepo: sessionRepo,
		voucherSvc:  voucherSvc,
		baseDelay:   cfg.Payment.RetryBaseDelay,
		queued:      make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}
}

// Grant admits the device for the voucher. Transient controller errors are
// retried with backoff; a persistently failing grant is queued for the
// background worker and the voucher stays valid and usable.
func (s *ActivationServiceImpl) Grant(ctx context.Context, voucherCode, mac string) (string, error) {
	mac = utils.NormalizeMac(mac)

	// At most one open session per voucher
	if existing, err := s.sessionRepo.FindOpenByVoucherCode(ctx, voucherCode); err == nil {
		return existing.SessionID, nil
	}

	if s.breakerOpen() {
		s.enqueue(voucherCode, mac)
		return "", fmt.Errorf("%w: circuit open, queued for retry", payerrors.ErrActivationFailure)
	}

	var lastErr error
	for attempt := 0; attempt < grantMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.baseDelay << uint(attempt-1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		sessionID, err := s.tryGrant(ctx, voucherCode, mac)
		if err == nil {
			return sessionID, nil
		}
		lastErr = err
		if !errors.Is(err, netcontroller.ErrControllerUnavailable) {
			return "", err
		}
		s.recordFailure()
	}

	s.enqueue(voucherCode, mac)
	slog.Warn("Activation queued after repeated controller failures", "voucherCode", voucherCode, "error", lastErr)
	return "", fmt.Errorf("%w: %v", payerrors.ErrActivationFailure, lastErr)
}

// tryGrant performs a single controller call and records the session
func (s *ActivationServiceImpl) tryGrant(ctx context.Context, voucherCode, mac string) (string, error) {
	ref, err := s.controller.Grant(ctx, netcontroller.GrantSpec{
		VoucherCode: voucherCode,
		Mac:         mac,
	})
	if err != nil {
		return "", err
	}

	session := &models.Session{
		SessionID:     uuid.NewString(),
		VoucherCode:   voucherCode,
		DeviceMac:     mac,
		ControllerRef: ref,
		Status:        models.SessionOpen,
		StartedAt:     time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to record session: %w", err)
	}

	if err := s.voucherSvc.ActivateVoucher(ctx, voucherCode); err != nil {
		slog.Error("Failed to activate voucher after grant", "voucherCode", voucherCode, "error", err)
	}

	s.resetBreaker()
	slog.Info("Device admitted", "voucherCode", voucherCode, "mac", mac, "sessionId", session.SessionID)
	return session.SessionID, nil
}

// Revoke terminates a session. Closed sessions are a no-op.
func (s *ActivationServiceImpl) Revoke(ctx context.Context, sessionID, reason string) error {
	session, err := s.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionClosed {
		return nil
	}

	if err := s.controller.Disconnect(ctx, session.ControllerRef); err != nil {
		return fmt.Errorf("%w: %v", payerrors.ErrActivationFailure, err)
	}

	session.Status = models.SessionClosed
	session.CloseReason = reason
	session.ClosedAt = time.Now()
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return err
	}

	if err := s.voucherSvc.DeactivateVoucher(ctx, session.VoucherCode); err != nil {
		slog.Error("Failed to deactivate voucher on revoke", "voucherCode", session.VoucherCode, "error", err)
	}

	slog.Info("Session revoked", "sessionId", sessionID, "reason", reason)
	return nil
}

// Start launches the background retry worker
func (s *ActivationServiceImpl) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(workerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessQueue(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts the retry worker down
func (s *ActivationServiceImpl) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ProcessQueue retries queued grants once each. Failures re-queue.
func (s *ActivationServiceImpl) ProcessQueue(ctx context.Context) {
	if s.breakerOpen() {
		return
	}

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.queued = make(map[string]struct{})
	s.mu.Unlock()

	for _, req := range pending {
		if _, err := s.tryGrant(ctx, req.VoucherCode, req.Mac); err != nil {
			s.recordFailure()
			s.enqueue(req.VoucherCode, req.Mac)
		}
	}
}

// PendingCount returns the number of queued grants
func (s *ActivationServiceImpl) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *ActivationServiceImpl) enqueue(voucherCode, mac string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.queued[voucherCode]; dup {
		return
	}
	s.queued[voucherCode] = struct{}{}
	s.queue = append(s.queue, grantRequest{VoucherCode: voucherCode, Mac: mac})
}

func (s *ActivationServiceImpl) breakerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.openUntil)
}

func (s *ActivationServiceImpl) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= breakerThreshold {
		s.openUntil = time.Now().Add(breakerCooldown)
		s.failures = 0
		slog.Warn("Activation circuit opened", "cooldown", breakerCooldown)
	}
}

func (s *ActivationServiceImpl) resetBreaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.openUntil = time.Time{}
}
