package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories/memory"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/smsgateway"
)

func newNotificationFixture(t *testing.T) (*NotificationServiceImpl, *memory.NotificationRepository, *smsgateway.MockGateway) {
	t.Helper()
	repo := memory.NewNotificationRepository()
	sms := smsgateway.NewMockGateway()
	return NewNotificationService(repo, sms, testConfig()), repo, sms
}

func TestEnqueue_DedupedPerTransaction(t *testing.T) {
	svc, repo, _ := newNotificationFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, "tx-1", "0742000111", "GGABC123"))
	require.NoError(t, svc.Enqueue(ctx, "tx-1", "0742000111", "GGABC123"))

	jobs, err := repo.FindByStatus(ctx, models.NotificationPending, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "255742000111", jobs[0].MSISDN)
	assert.Contains(t, jobs[0].Content, "GGABC123")
}

func TestProcessPending_Delivers(t *testing.T) {
	svc, repo, sms := newNotificationFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, "tx-1", "0742000111", "GGABC123"))
	svc.ProcessPending(ctx)

	job, err := repo.FindByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, job.Status)
	assert.NotEmpty(t, job.MessageID)
	assert.False(t, job.SentAt.IsZero())
	assert.Len(t, sms.SentMessages(), 1)

	// A sent job is never redelivered
	svc.ProcessPending(ctx)
	assert.Len(t, sms.SentMessages(), 1)
}

func TestProcessPending_DeadLettersAfterRetries(t *testing.T) {
	svc, repo, sms := newNotificationFixture(t)
	ctx := context.Background()

	sms.FailSends = 10
	require.NoError(t, svc.Enqueue(ctx, "tx-1", "0742000111", "GGABC123"))

	// Drive the job through its whole retry budget. The backoff window is
	// a millisecond in tests, so repeated passes are enough.
	require.Eventually(t, func() bool {
		svc.ProcessPending(ctx)
		job, err := repo.FindByTransactionID(ctx, "tx-1")
		return err == nil && job.Status == models.NotificationDeadLettered
	}, testWait, testTick)

	job, err := repo.FindByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, notificationMaxAttempts, job.Attempts)
	assert.NotEmpty(t, job.LastError)
}

func TestProcessPending_RecoversAfterTransientFailure(t *testing.T) {
	svc, repo, sms := newNotificationFixture(t)
	ctx := context.Background()

	sms.FailSends = 1
	require.NoError(t, svc.Enqueue(ctx, "tx-1", "0742000111", "GGABC123"))

	svc.ProcessPending(ctx)
	job, err := repo.FindByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, job.Status)

	require.Eventually(t, func() bool {
		svc.ProcessPending(ctx)
		job, err := repo.FindByTransactionID(ctx, "tx-1")
		return err == nil && job.Status == models.NotificationSent
	}, testWait, testTick)
}
