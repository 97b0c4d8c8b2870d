package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories/memory"
)

func newVoucherFixture(t *testing.T) (*VoucherServiceImpl, *memory.VoucherRepository) {
	t.Helper()
	voucherRepo := memory.NewVoucherRepository()
	pkgRepo := memory.NewPackageRepository()
	require.NoError(t, NewCatalogService(pkgRepo).EnsureDefaults(context.Background()))
	return NewVoucherService(voucherRepo, pkgRepo, testConfig()), voucherRepo
}

func settledTx(id string) *models.Transaction {
	return &models.Transaction{
		TransactionID: id,
		PackageID:     "daily-1",
		PhoneNumber:   "255742000111",
		DeviceMac:     "AA:BB:CC:DD:EE:01",
		State:         models.StateSettled,
	}
}

func TestGenerateVoucher(t *testing.T) {
	svc, _ := newVoucherFixture(t)
	ctx := context.Background()

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(voucher.Code, "GG"))
	assert.Len(t, voucher.Code, 8)
	assert.Equal(t, models.VoucherIssued, voucher.Status)
	assert.Equal(t, "Daily Plan", voucher.PackageName)
	assert.Equal(t, 24*time.Hour, voucher.TimeLimit)
	assert.False(t, voucher.IsBound())
}

func TestGenerateVoucher_IdempotentPerTransaction(t *testing.T) {
	svc, repo := newVoucherFixture(t)
	ctx := context.Background()

	first, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)

	second, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, 1, repo.Count())
}

func TestGenerateVoucher_UnknownPackage(t *testing.T) {
	svc, _ := newVoucherFixture(t)

	tx := settledTx("tx-1")
	tx.PackageID = "missing"
	_, err := svc.GenerateVoucher(context.Background(), tx)
	assert.Error(t, err)
}

func TestBindVoucher_WriteOnce(t *testing.T) {
	svc, _ := newVoucherFixture(t)
	ctx := context.Background()

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)

	require.NoError(t, svc.BindVoucher(ctx, voucher.Code, "0742000111", "aa:bb:cc:dd:ee:01"))

	// Identical rebind is a no-op, even with unnormalized input
	assert.NoError(t, svc.BindVoucher(ctx, voucher.Code, "255742000111", "AA-BB-CC-DD-EE-01"))

	// A different device is a conflict
	err = svc.BindVoucher(ctx, voucher.Code, "0742000111", "AA:BB:CC:DD:EE:99")
	assert.ErrorIs(t, err, payerrors.ErrBindingConflict)

	err = svc.BindVoucher(ctx, voucher.Code, "0742999999", "aa:bb:cc:dd:ee:01")
	assert.ErrorIs(t, err, payerrors.ErrBindingConflict)
}

func TestValidateVoucher(t *testing.T) {
	svc, repo := newVoucherFixture(t)
	ctx := context.Background()

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)
	mac := "AA:BB:CC:DD:EE:01"

	// Unbound vouchers are not yet usable
	v, err := svc.ValidateVoucher(ctx, voucher.Code, mac)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	require.NoError(t, svc.BindVoucher(ctx, voucher.Code, "0742000111", mac))

	v, err = svc.ValidateVoucher(ctx, voucher.Code, "aa-bb-cc-dd-ee-01")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "Daily Plan", v.PackageName)
	assert.Equal(t, "255742000111", v.BoundPhone)

	// Wrong device
	v, err = svc.ValidateVoucher(ctx, voucher.Code, "AA:BB:CC:DD:EE:99")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	// Unknown code
	v, err = svc.ValidateVoucher(ctx, "GGZZZZZZ", mac)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	// Validation never mutates the voucher
	stored, err := repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherIssued, stored.Status)
}

func TestValidateVoucher_ExpiredAndConsumed(t *testing.T) {
	svc, repo := newVoucherFixture(t)
	ctx := context.Background()
	mac := "AA:BB:CC:DD:EE:01"

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)
	require.NoError(t, svc.BindVoucher(ctx, voucher.Code, "0742000111", mac))

	stored, err := repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	stored.Status = models.VoucherActive
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Update(ctx, stored))

	v, err := svc.ValidateVoucher(ctx, voucher.Code, mac)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	stored.ExpiresAt = time.Now().Add(time.Hour)
	stored.Status = models.VoucherConsumed
	require.NoError(t, repo.Update(ctx, stored))

	v, err = svc.ValidateVoucher(ctx, voucher.Code, mac)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestActivateVoucher(t *testing.T) {
	svc, repo := newVoucherFixture(t)
	ctx := context.Background()

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)

	require.NoError(t, svc.ActivateVoucher(ctx, voucher.Code))

	active, err := repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherActive, active.Status)
	firstExpiry := active.ExpiresAt
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), firstExpiry, 2*time.Second)

	// Re-activation must not extend the allowance
	require.NoError(t, svc.ActivateVoucher(ctx, voucher.Code))
	again, err := repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, firstExpiry, again.ExpiresAt)

	// A consumed voucher cannot come back
	require.NoError(t, svc.DeactivateVoucher(ctx, voucher.Code))
	assert.Error(t, svc.ActivateVoucher(ctx, voucher.Code))
}

func TestRecordUsage(t *testing.T) {
	svc, repo := newVoucherFixture(t)
	ctx := context.Background()

	voucher, err := svc.GenerateVoucher(ctx, settledTx("tx-1"))
	require.NoError(t, err)
	require.NoError(t, svc.ActivateVoucher(ctx, voucher.Code))

	require.NoError(t, svc.RecordUsage(ctx, voucher.Code, time.Hour, 100))
	cur, err := repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherActive, cur.Status)
	assert.Equal(t, 23*time.Hour, cur.RemainingTime())

	// Exhausting the time allowance consumes the voucher
	require.NoError(t, svc.RecordUsage(ctx, voucher.Code, 24*time.Hour, 100))
	cur, err = repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherConsumed, cur.Status)

	// Usage reported after consumption is dropped
	require.NoError(t, svc.RecordUsage(ctx, voucher.Code, 30*time.Hour, 999))
	cur, err = repo.FindByCode(ctx, voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cur.UsedDataMB)
}
