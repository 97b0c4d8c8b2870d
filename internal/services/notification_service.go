package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
	"github.com/ggnetworks/hotspot-billing-backend/internal/utils"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/smsgateway"
)

const (
	notificationMaxAttempts = 3
	deliveryInterval        = 3 * time.Second
	deliveryBatchSize       = 50
)

// Compile-time check to ensure NotificationServiceImpl implements NotificationService
var _ NotificationService = (*NotificationServiceImpl)(nil)

// NotificationServiceImpl delivers voucher SMS messages at least once
type NotificationServiceImpl struct {
	notificationRepo repositories.NotificationRepository
	gateway          smsgateway.Gateway
	baseDelay        time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewNotificationService creates a new NotificationServiceImpl
func NewNotificationService(notificationRepo repositories.NotificationRepository, gateway smsgateway.Gateway, cfg *config.Config) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		notificationRepo: notificationRepo,
		gateway:          gateway,
		baseDelay:        cfg.Payment.RetryBaseDelay,
		stopCh:           make(chan struct{}),
	}
}

// Enqueue registers a voucher SMS for delivery. Duplicate calls for the
// same transaction are a no-op, so orchestrator retries never resend.
func (s *NotificationServiceImpl) Enqueue(ctx context.Context, transactionID, phone, voucherCode string) error {
	job := &models.NotificationJob{
		TransactionID: transactionID,
		MSISDN:        utils.NormalizePhoneNumber(phone),
		VoucherCode:   voucherCode,
		Content:       fmt.Sprintf("Your GG Networks voucher code is %s. Connect to the hotspot and enter it to get online.", voucherCode),
		Status:        models.NotificationPending,
	}

	err := s.notificationRepo.Create(ctx, job)
	if errors.Is(err, repositories.ErrDuplicateJob) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	slog.Info("Notification enqueued", "transactionId", transactionID, "msisdn", job.MSISDN)
	return nil
}

// GetJobsByStatus lists jobs for operational follow-up
func (s *NotificationServiceImpl) GetJobsByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]*models.NotificationJob, error) {
	return s.notificationRepo.FindByStatus(ctx, status, limit)
}

// Start launches the delivery worker
func (s *NotificationServiceImpl) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(deliveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessPending(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts the delivery worker down
func (s *NotificationServiceImpl) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ProcessPending attempts delivery for due pending jobs. A job is due once
// its exponential backoff window since the last attempt has elapsed.
func (s *NotificationServiceImpl) ProcessPending(ctx context.Context) {
	jobs, err := s.notificationRepo.FindByStatus(ctx, models.NotificationPending, deliveryBatchSize)
	if err != nil {
		slog.Error("Failed to load pending notifications", "error", err)
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if job.Attempts > 0 {
			due := job.UpdatedAt.Add(s.baseDelay << uint(job.Attempts))
			if now.Before(due) {
				continue
			}
		}
		s.deliver(ctx, job)
	}
}

func (s *NotificationServiceImpl) deliver(ctx context.Context, job *models.NotificationJob) {
	messageID, err := s.gateway.SendSMS(ctx, job.MSISDN, job.Content)
	job.Attempts++

	if err == nil {
		job.Status = models.NotificationSent
		job.MessageID = messageID
		job.SentAt = time.Now()
		job.LastError = ""
		if uerr := s.notificationRepo.Update(ctx, job); uerr != nil {
			slog.Error("Failed to mark notification sent", "transactionId", job.TransactionID, "error", uerr)
		}
		slog.Info("Notification delivered", "transactionId", job.TransactionID, "messageId", messageID)
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= notificationMaxAttempts {
		job.Status = models.NotificationDeadLettered
		slog.Error("Notification dead-lettered", "transactionId", job.TransactionID, "attempts", job.Attempts, "error", err)
	} else {
		slog.Warn("Notification delivery failed, will retry", "transactionId", job.TransactionID, "attempt", job.Attempts, "error", err)
	}
	if uerr := s.notificationRepo.Update(ctx, job); uerr != nil {
		slog.Error("Failed to update notification job", "transactionId", job.TransactionID, "error", uerr)
	}
}
